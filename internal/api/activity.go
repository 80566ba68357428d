package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/infinitech/infinitask/internal/task"
	"github.com/infinitech/infinitask/pkg/cerr"
)

// ActivityInput is the body of an activity create or edit.
type ActivityInput struct {
	Title         string   `json:"title" validate:"required"`
	Description   []string `json:"description" validate:"required,min=1,dive,required"`
	DateStarted   string   `json:"date_started" validate:"required"`
	DueDate       string   `json:"due_date" validate:"required"`
	Tags          string   `json:"tags" validate:"required"`
	Status        string   `json:"status,omitempty"`
	Archive       bool     `json:"archive"`
	DependencyID  string   `json:"dependencyId,omitempty"`
	Collaborators []string `json:"collaborators"`
	UserID        string   `json:"user_id,omitempty"`
}

var inputValidate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}()

// Validate checks required fields and that the due date falls after the
// start date.
func (in *ActivityInput) Validate() error {
	verr := cerr.NewError(cerr.InvalidArgument, "invalid activity", nil)
	if err := inputValidate.Struct(in); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return cerr.NewError(cerr.Internal, "failed to validate activity", err)
		}
		for _, fe := range ves {
			verr.AddViolation(fe.Field(), "failed on "+fe.Tag())
		}
	}
	if in.DateStarted != "" && in.DueDate != "" {
		start, okStart := task.ParseDeadline(in.DateStarted, time.UTC)
		due, okDue := task.ParseDeadline(in.DueDate, time.UTC)
		switch {
		case !okStart:
			verr.AddViolation("date_started", "unrecognised date")
		case !okDue:
			verr.AddViolation("due_date", "unrecognised date")
		case !due.After(start):
			verr.AddViolation("due_date", "must be after date_started")
		}
	}
	if len(verr.Details) > 0 {
		return verr
	}
	return nil
}

type userResponse struct {
	ID idString `json:"id"`
}

// UserID resolves the user behind an owner key.
func (c *Client) UserID(ctx context.Context, ownerKey string) (string, error) {
	if ownerKey == "" {
		return "", cerr.NewError(cerr.InvalidArgument, "owner key is required", nil).AddViolation("owner_key", "must not be empty")
	}
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(ownerKey), nil, &u); err != nil {
		return "", err
	}
	if u.ID == "" {
		return "", cerr.NewError(cerr.NotFound, "user not found for owner key", nil)
	}
	return string(u.ID), nil
}

// CreateActivity validates in, stamps it with the owner's user id and posts it.
func (c *Client) CreateActivity(ctx context.Context, ownerKey string, in ActivityInput) error {
	body, err := c.prepareActivity(ctx, ownerKey, in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/activities", body, nil)
}

// UpdateActivity replaces the editable fields of activity id.
func (c *Client) UpdateActivity(ctx context.Context, ownerKey, id string, in ActivityInput) error {
	if id == "" {
		return errEmptyID()
	}
	body, err := c.prepareActivity(ctx, ownerKey, in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/activities/"+url.PathEscape(id), body, nil)
}

func (c *Client) prepareActivity(ctx context.Context, ownerKey string, in ActivityInput) (*ActivityInput, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = string(task.StatusPending)
	}
	if in.Collaborators == nil {
		in.Collaborators = []string{}
	}
	if in.UserID == "" {
		id, err := c.UserID(ctx, ownerKey)
		if err != nil {
			return nil, err
		}
		in.UserID = id
	}
	return &in, nil
}
