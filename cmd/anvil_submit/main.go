// anvil_submit is the reference client: it fetches the project's editor
// file, submits it back with a local edit applied, and polls the ticket
// until it settles or the local deadline passes.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"anvil/internal/balancer"
	"anvil/internal/logger"
	"anvil/internal/poller"
	"anvil/model"
)

func main() {
	var (
		url      = flag.String("url", "http://localhost:8080", "balancer base URL")
		project  = flag.String("project", "", "project name (required)")
		file     = flag.String("file", "", "local file with replacement contents; omit to resubmit the project as-is")
		user     = flag.String("user", "", "user id attached to the task")
		interval = flag.Duration("interval", 2*time.Second, "poll interval")
		timeout  = flag.Duration("timeout", 5*time.Minute, "give up after this long")
		out      = flag.String("out", "", "write the decoded success artifact here")
	)
	flag.Parse()

	if *project == "" {
		flag.Usage()
		os.Exit(2)
	}
	logger.Init("anvil_submit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := balancer.NewWorkerClient(*url)

	remote, err := client.Project(ctx, *project)
	if err != nil {
		log.Fatalf("unable to fetch project: %v", err)
	}
	fmt.Printf("project %s, editable file %s\n", remote.ProjectName, remote.Filename)

	contents := remote.Contents
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("unable to read %s: %v", *file, err)
		}
		contents = string(b)
	}

	created, err := client.CreateTask(ctx, model.Task{
		Project: *project,
		UserID:  *user,
		Patches: []model.Patch{{Filename: remote.Filename, Contents: contents}},
	})
	if err != nil {
		log.Fatalf("unable to create task: %v", err)
	}
	fmt.Printf("ticket %s accepted by %s\n", created.Ticket, created.WorkerID)

	p := poller.New(client, *interval, *timeout)
	p.OnUpdate = func(s model.StatusResponse) {
		fmt.Printf("status %s", s.Status)
		if s.Detail != "" {
			fmt.Printf(" (%s)", s.Detail)
		}
		fmt.Println()
	}

	final, err := p.Poll(ctx, created.Ticket)
	if err != nil {
		log.Fatalf("polling failed: %v", err)
	}

	switch final.Status {
	case model.StatusComplete:
		if *out != "" {
			artifact, err := base64.StdEncoding.DecodeString(final.Payload)
			if err != nil {
				log.Fatalf("malformed artifact payload: %v", err)
			}
			if err := os.WriteFile(*out, artifact, 0o644); err != nil {
				log.Fatalf("unable to write artifact: %v", err)
			}
			fmt.Printf("artifact written to %s\n", *out)
		}
	case model.StatusTimeout:
		fmt.Println("gave up waiting; the task may still finish on the worker")
		os.Exit(1)
	default:
		fmt.Printf("task failed:\n%s\n", final.Payload)
		os.Exit(1)
	}
}
