package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/runner"
	"github.com/meikuraledutech/workflow/steps"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	// Wire up the postgres implementation behind the Store interface.
	var store workflow.Store = postgres.New(pool)

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Build a descriptor: fetch → (drums, vocals) → render ─────────
	d := workflow.NewDescriptor()
	fetch, err := steps.Encode("fetch", "Fetch stems", &steps.Task{Description: "download multitrack stems"})
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	render, err := steps.Encode("render", "Render", &steps.Sample{SampleID: "mix-01", Format: "audio", Duration: 180})
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	d.PutStep(fetch)
	d.PutStep(workflow.Step{ID: "drums", Name: "Drums"})
	d.PutStep(workflow.Step{ID: "vocals", Name: "Vocals"})
	d.PutStep(render)
	d.Link("fetch", "drums")
	d.Link("fetch", "vocals")
	d.Link("drums", "render")
	d.Link("vocals", "render")

	// ── Materialize locally ───────────────────────────────────────────
	sources, err := workflow.Materialize(d)
	if err != nil {
		log.Fatalf("materialize: %v", err)
	}
	fmt.Printf("\nsources: %v\n", sources)
	for _, n := range sources[0].Next() {
		fmt.Printf("  %s -> %v\n", n, n.Next())
	}

	// ── Save ──────────────────────────────────────────────────────────
	saved, err := store.SaveWorkflow(ctx, &workflow.Workflow{ID: "mixdown", Name: "Mixdown", Graph: d})
	if err != nil {
		log.Fatalf("save workflow: %v", err)
	}
	fmt.Println("\nworkflow saved")
	printJSON(saved)

	// ── Granular: add a step and an edge render → master ─────────────
	masterID, err := store.AddStep(ctx, "mixdown", &workflow.Step{ID: "master", Name: "Master"})
	if err != nil {
		log.Fatalf("add step: %v", err)
	}
	if err := store.AddEdge(ctx, "mixdown", "render", masterID); err != nil {
		log.Fatalf("add edge: %v", err)
	}
	fmt.Printf("\nadded step %s after render\n", masterID)

	// An edge closing a loop is refused.
	err = store.AddEdge(ctx, "mixdown", masterID, "fetch")
	var cycle *workflow.CycleError
	if errors.As(err, &cycle) {
		fmt.Printf("refused edge: cycle %v\n", cycle.Path)
	}

	// ── Run ───────────────────────────────────────────────────────────
	svc := runner.NewService(store, nil, logging.New(os.Stdout, "info", "text"))
	run, err := svc.Start(ctx, "mixdown")
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	fmt.Println("\nrun finished:")
	printJSON(run)

	// ── Round-trip ────────────────────────────────────────────────────
	w, err := store.GetWorkflow(ctx, "mixdown")
	if err != nil {
		log.Fatalf("get workflow: %v", err)
	}
	again, err := workflow.Materialize(w.Graph)
	if err != nil {
		log.Fatalf("materialize: %v", err)
	}
	fmt.Println("\nflattened from drums:")
	printJSON(workflow.Flatten(workflow.Find(again, "drums")))

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteWorkflow(ctx, "mixdown"); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\nworkflow deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
