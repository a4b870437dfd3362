package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/jsonrpc/client"
)

type sendFlags struct {
	session string
	task    string
	text    string
}

func (c *cli) parseSend(name string, args []string) (sendFlags, error) {
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(c.err)
	session := cmd.String("session", "", "Session id shared by related tasks")
	task := cmd.String("task", "", "Task id; reuse it to answer an input-required task")
	if err := cmd.Parse(args); err != nil {
		return sendFlags{}, err
	}
	text := strings.TrimSpace(strings.Join(cmd.Args(), " "))
	if text == "" {
		return sendFlags{}, NewInvalidArgumentError("text", fmt.Sprintf("usage: agora %s [-session id] [-task id] <text>", name))
	}
	return sendFlags{session: *session, task: *task, text: text}, nil
}

func (f sendFlags) params() a2a.TaskSendParams {
	return a2a.TaskSendParams{
		ID:        f.task,
		SessionID: f.session,
		Message:   a2a.NewTextMessage(a2a.RoleUser, f.text),
	}
}

func (c *cli) client() *client.Client {
	return client.New(c.flags.URL)
}

func (c *cli) runSend(ctx context.Context, args []string) error {
	f, err := c.parseSend("send", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()

	task, err := c.client().Send(ctx, f.params())
	if err != nil {
		return WrapRemoteError(err, c.flags.URL)
	}
	return c.printTask(task)
}

func (c *cli) runStream(ctx context.Context, args []string) error {
	f, err := c.parseSend("stream", args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()

	events, err := c.client().SendSubscribe(ctx, f.params())
	if err != nil {
		return WrapRemoteError(err, c.flags.URL)
	}
	for item := range events {
		if item.Err != nil {
			return WrapRemoteError(item.Err, c.flags.URL)
		}
		if err := c.printEvent(item.Event); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return WrapTimeoutError(err, "stream")
	}
	return nil
}

func (c *cli) runGet(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("get", flag.ContinueOnError)
	cmd.SetOutput(c.err)
	history := cmd.Int("history", 0, "Number of recent history messages to include")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if cmd.NArg() < 1 {
		return NewInvalidArgumentError("task_id", "usage: agora get [-history N] <task_id>")
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()

	task, err := c.client().Get(ctx, cmd.Arg(0), *history)
	if err != nil {
		return WrapRemoteError(err, c.flags.URL)
	}
	if err := c.printTask(task); err != nil {
		return err
	}
	if c.flags.JSON {
		return nil
	}
	for _, msg := range task.History {
		fmt.Fprintf(c.out, "  [%s] %s\n", msg.Role, normalizeCell(msg.Text()))
	}
	return nil
}

func (c *cli) runCancel(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("cancel", flag.ContinueOnError)
	cmd.SetOutput(c.err)
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if cmd.NArg() < 1 {
		return NewInvalidArgumentError("task_id", "usage: agora cancel <task_id>")
	}
	ctx, cancel := context.WithTimeout(ctx, c.flags.Timeout)
	defer cancel()

	task, err := c.client().Cancel(ctx, cmd.Arg(0))
	if err != nil {
		return WrapRemoteError(err, c.flags.URL)
	}
	return c.printTask(task)
}

func (c *cli) printTask(task *a2a.Task) error {
	if c.flags.JSON {
		return c.printJSON(task)
	}
	fmt.Fprintf(c.out, "task %s session=%s state=%s\n", task.ID, normalizeCell(task.SessionID), task.Status.State)
	if task.Status.Message != nil {
		fmt.Fprintln(c.out, task.Status.Message.Text())
	}
	for _, artifact := range task.Artifacts {
		fmt.Fprintf(c.out, "artifact %s: %s\n", normalizeCell(artifact.Name), normalizeCell(artifactText(artifact)))
	}
	if task.Error != nil {
		fmt.Fprintf(c.out, "error %s: %s\n", task.Error.Code, task.Error.Message)
	}
	return nil
}

func (c *cli) printEvent(ev a2a.StatusUpdateEvent) error {
	if c.flags.JSON {
		return writeJSONLine(c.out, ev)
	}
	text := ""
	if ev.Status.Message != nil {
		text = ev.Status.Message.Text()
	}
	stamp := "-"
	if !ev.Status.Timestamp.IsZero() {
		stamp = ev.Status.Timestamp.Local().Format(time.TimeOnly)
	}
	marker := ""
	if ev.Final {
		marker = " (final)"
	}
	fmt.Fprintf(c.out, "%s %-14s %s%s\n", stamp, ev.Status.State, text, marker)
	return nil
}

func artifactText(artifact a2a.Artifact) string {
	var parts []string
	for _, part := range artifact.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, " ")
}
