package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/infinitech/infinitask/internal/config"
)

// runAction forwards a user action on one task to the API. The running board
// picks the change up on its next refresh.
func runAction(ctx context.Context, env *config.Env, action, id string) error {
	client, err := newAPIClient(env)
	if err != nil {
		return err
	}
	var do func(context.Context, string) error
	switch action {
	case "done":
		do = client.MarkDone
	case "archive":
		do = client.Archive
	case "restore":
		do = client.Restore
	case "delete":
		do = client.Delete
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err := do(ctx, id); err != nil {
		return fmt.Errorf("%s %s: %w", action, id, err)
	}
	fmt.Fprintf(os.Stdout, "%s task %s\n", color.GreenString("%s:", action), id)
	return nil
}

func runNotifications(ctx context.Context, env *config.Env, readID string, readAll bool) error {
	client, err := newAPIClient(env)
	if err != nil {
		return err
	}
	switch {
	case readID != "":
		if err := client.MarkNotificationRead(ctx, readID); err != nil {
			return fmt.Errorf("mark notification %s read: %w", readID, err)
		}
		fmt.Fprintf(os.Stdout, "notification %s marked as read\n", readID)
		return nil
	case readAll:
		if err := env.RequireOwnerKey(); err != nil {
			return err
		}
		if err := client.MarkAllNotificationsRead(ctx, env.OwnerKey); err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
		fmt.Fprintln(os.Stdout, "all notifications marked as read")
		return nil
	}

	if err := env.RequireOwnerKey(); err != nil {
		return err
	}
	ns, err := client.ListNotifications(ctx, env.OwnerKey)
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	fmt.Fprintln(os.Stdout, renderNotifications(ns))
	return nil
}

