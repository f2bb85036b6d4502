// Command execpool-cli is a thin command-line front end for execpool's
// admin HTTP API: submit a task, check or await its result, cancel it,
// or tail the live event feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NageshMashette/execpool/pkg/client"
)

func main() {
	server := flag.String("server", envOr("EXECPOOL_SERVER", "http://localhost:8090"), "execpool-server base URL")
	apiKey := flag.String("api-key", os.Getenv("EXECPOOL_API_KEY"), "API key for authenticated requests")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "submit":
		err = runSubmit(args, *server, *apiKey)
	case "get":
		err = runGet(args, *server, *apiKey)
	case "cancel":
		err = runCancel(args, *server, *apiKey)
	case "wait":
		err = runWait(args, *server, *apiKey)
	case "watch":
		err = runWatch(args, *server, *apiKey)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "execpool-cli: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "execpool-cli: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: execpool-cli [global options] <command> [options]

Commands:
  submit -type NAME [-args JSON] [-kwargs JSON]   submit a task, print its handle
  get -id TASKID                                  fetch a task's current state
  cancel -id TASKID                                cancel a task still pending
  wait -id TASKID [-interval DURATION]            poll until the task finishes
  watch                                           stream the live event feed

Global options:
  -server URL     execpool-server base URL (default http://localhost:8090)
  -api-key KEY    API key for authenticated requests
`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runSubmit(args []string, server, apiKey string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	taskType := fs.String("type", "", "task type to submit")
	argsJSON := fs.String("args", "[]", "JSON array of positional arguments")
	kwargsJSON := fs.String("kwargs", "{}", "JSON object of keyword arguments")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskType == "" {
		return fmt.Errorf("submit: -type is required")
	}

	var taskArgs []interface{}
	if err := json.Unmarshal([]byte(*argsJSON), &taskArgs); err != nil {
		return fmt.Errorf("submit: invalid -args JSON: %w", err)
	}
	var taskKwargs map[string]interface{}
	if err := json.Unmarshal([]byte(*kwargsJSON), &taskKwargs); err != nil {
		return fmt.Errorf("submit: invalid -kwargs JSON: %w", err)
	}

	c := client.New(server, client.WithAPIKey(apiKey))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := c.Submit(ctx, *taskType, taskArgs, taskKwargs)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runGet(args []string, server, apiKey string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	taskID := fs.String("id", "", "task ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return fmt.Errorf("get: -id is required")
	}

	c := client.New(server, client.WithAPIKey(apiKey))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := c.Get(ctx, *taskID)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runCancel(args []string, server, apiKey string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	taskID := fs.String("id", "", "task ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return fmt.Errorf("cancel: -id is required")
	}

	c := client.New(server, client.WithAPIKey(apiKey))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := c.Cancel(ctx, *taskID)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runWait(args []string, server, apiKey string) error {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	taskID := fs.String("id", "", "task ID")
	interval := fs.Duration("interval", 200*time.Millisecond, "poll interval")
	timeout := fs.Duration("timeout", 60*time.Second, "overall wait timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return fmt.Errorf("wait: -id is required")
	}

	c := client.New(server, client.WithAPIKey(apiKey))
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := c.Wait(ctx, *taskID, *interval)
	if err != nil {
		return err
	}
	return printResult(result)
}

func runWatch(args []string, server, apiKey string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := client.New(server, client.WithAPIKey(apiKey))
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.ConnectEvents(ctx); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	fmt.Println("watching live events, ctrl-c to stop...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-c.Events():
			if !ok {
				return nil
			}
			enc, _ := json.Marshal(event)
			fmt.Println(string(enc))
		}
	}
}

func printResult(r *client.TaskResult) error {
	enc, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}
