package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/infinitech/infinitask/internal/api"
	"github.com/infinitech/infinitask/internal/config"
	"github.com/infinitech/infinitask/pkg/clog"
	"github.com/infinitech/infinitask/pkg/storage"
)

var (
	app     = kingpin.New("infinitask", "Task lifecycle monitor for the InfiniTask dashboard")
	envFile = app.Flag("env-file", "dotenv file loaded before the environment").Default(".env").String()

	runCmd = app.Command("run", "Run the monitor and the status API").Default()

	sentinelCmd = app.Command("sentinel", "Supervise 'run', restarting it on crash or binary update")

	checkCmd    = app.Command("check", "Fetch tasks once and evaluate them at the current time")
	checkDryRun = checkCmd.Flag("dry-run", "Do not report overdue tasks to the API").Bool()

	addCmd    = app.Command("add", "Create an activity")
	addFlags  = registerActivityFlags(addCmd)
	editCmd   = app.Command("edit", "Edit an activity; omitted flags keep their value")
	editID    = editCmd.Arg("id", "Task ID").Required().String()
	editFlags = registerActivityFlags(editCmd)

	doneCmd    = app.Command("done", "Mark a task complete")
	doneID     = doneCmd.Arg("id", "Task ID").Required().String()
	archiveCmd = app.Command("archive", "Archive a task")
	archiveID  = archiveCmd.Arg("id", "Task ID").Required().String()
	restoreCmd = app.Command("restore", "Restore an archived or overdue task")
	restoreID  = restoreCmd.Arg("id", "Task ID").Required().String()
	deleteCmd  = app.Command("delete", "Delete a task")
	deleteID   = deleteCmd.Arg("id", "Task ID").Required().String()

	notificationsCmd     = app.Command("notifications", "List or mark notifications")
	notificationsRead    = notificationsCmd.Flag("read", "Mark one notification as read").String()
	notificationsReadAll = notificationsCmd.Flag("read-all", "Mark all notifications as read").Bool()
)

func main() {
	app.HelpFlag.Short('h')
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv(*envFile)
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx := context.Background()
	switch command {
	case runCmd.FullCommand():
		err = runServe(ctx, env)
	case sentinelCmd.FullCommand():
		err = runSentinel(ctx)
	case checkCmd.FullCommand():
		err = runCheck(ctx, env, *checkDryRun)
	case addCmd.FullCommand():
		err = runAdd(ctx, env, addFlags)
	case editCmd.FullCommand():
		err = runEdit(ctx, env, *editID, editFlags)
	case doneCmd.FullCommand():
		err = runAction(ctx, env, "done", *doneID)
	case archiveCmd.FullCommand():
		err = runAction(ctx, env, "archive", *archiveID)
	case restoreCmd.FullCommand():
		err = runAction(ctx, env, "restore", *restoreID)
	case deleteCmd.FullCommand():
		err = runAction(ctx, env, "delete", *deleteID)
	case notificationsCmd.FullCommand():
		err = runNotifications(ctx, env, *notificationsRead, *notificationsReadAll)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(!color.NoColor))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func newStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		return s, nil
	}
}

func newAPIClient(env *config.Env) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL:     env.BaseURL,
		BearerToken: env.BearerToken,
		Timeout:     env.APIEnv.Timeout,
	})
}
