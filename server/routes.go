package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberrecover "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/runner"
	"github.com/meikuraledutech/workflow/steps"
)

type api struct {
	store      workflow.Store
	runs       *runner.Service
	runTimeout time.Duration
}

type edgeBody struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type sourcesBody struct {
	Sources    []string   `json:"sources"`
	Components [][]string `json:"components"`
}

// newApp wires every route onto a fiber app.
func newApp(store workflow.Store, runs *runner.Service, log *slog.Logger, runTimeout time.Duration) *fiber.App {
	h := &api{store: store, runs: runs, runTimeout: runTimeout}

	app := fiber.New(fiber.Config{AppName: "workflow"})
	app.Use(fiberrecover.New())
	app.Use(requestLogger(log))

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", h.createSchema)
	app.Delete("/schema", h.dropSchema)

	// ── Workflows (bulk) ──────────────────────────────────────────────
	app.Post("/workflows", h.saveWorkflow)
	app.Get("/workflows", h.listWorkflows)
	app.Get("/workflows/:id", h.getWorkflow)
	app.Delete("/workflows/:id", h.deleteWorkflow)
	app.Get("/workflows/:id/sources", h.sources)
	app.Get("/workflows/:id/flatten", h.flatten)

	// ── Steps ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/steps", h.addStep)
	app.Put("/workflows/:id/steps/:step", h.updateStep)
	app.Delete("/workflows/:id/steps/:step", h.deleteStep)
	app.Get("/kinds", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"kinds": steps.Kinds()})
	})

	// ── Edges ─────────────────────────────────────────────────────────
	app.Post("/workflows/:id/edges", h.addEdge)
	app.Delete("/workflows/:id/edges", h.deleteEdge)

	// ── Runs ──────────────────────────────────────────────────────────
	app.Post("/workflows/:id/runs", h.startRun)
	app.Get("/workflows/:id/runs", h.listRuns)
	app.Get("/runs/:id", h.getRun)

	app.Post("/validate", h.validate)

	return app
}

// requestLogger tags each request with an id and stores a request-scoped
// logger in the request context.
func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, id)

		reqLog := log.With("request_id", id)
		c.SetContext(logging.WithLogger(c.Context(), reqLog))

		err := c.Next()
		reqLog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

// fail maps err onto a status code and writes {"error": ...}.
func fail(c fiber.Ctx, err error) error {
	var cycle *workflow.CycleError
	switch {
	case errors.As(err, &cycle):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error(), "cycle": cycle.Path})
	case errors.Is(err, workflow.ErrMalformedGraph),
		errors.Is(err, workflow.ErrUnreachableNode),
		errors.Is(err, steps.ErrUnknownKind),
		errors.Is(err, steps.ErrInvalidSpec):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, workflow.ErrWorkflowNotFound),
		errors.Is(err, workflow.ErrStepNotFound),
		errors.Is(err, workflow.ErrEdgeNotFound),
		errors.Is(err, workflow.ErrRunNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, workflow.ErrStepExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	logging.FromContext(c.Context()).Error("request failed", "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// ── Schema ────────────────────────────────────────────────────────────

func (h *api) createSchema(c fiber.Ctx) error {
	if err := h.store.CreateSchema(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema created"})
}

func (h *api) dropSchema(c fiber.Ctx) error {
	if err := h.store.DropSchema(c.Context()); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "schema dropped"})
}

// ── Workflows ─────────────────────────────────────────────────────────

func (h *api) saveWorkflow(c fiber.Ctx) error {
	var w workflow.Workflow
	if err := c.Bind().JSON(&w); err != nil {
		return badRequest(c, "invalid body")
	}
	if w.Graph != nil {
		if err := steps.ValidateGraph(w.Graph); err != nil {
			return fail(c, err)
		}
	}
	saved, err := h.store.SaveWorkflow(c.Context(), &w)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (h *api) listWorkflows(c fiber.Ctx) error {
	list, err := h.store.ListWorkflows(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(list)
}

func (h *api) getWorkflow(c fiber.Ctx) error {
	w, err := h.load(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(w)
}

func (h *api) deleteWorkflow(c fiber.Ctx) error {
	if err := h.store.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *api) sources(c fiber.Ctx) error {
	w, err := h.load(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	sources, err := workflow.Materialize(w.Graph)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(describeSources(sources))
}

func (h *api) flatten(c fiber.Ctx) error {
	w, err := h.load(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	sources, err := workflow.Materialize(w.Graph)
	if err != nil {
		return fail(c, err)
	}

	entries := sources
	if from := c.Query("from"); from != "" {
		entries = nil
		for _, id := range strings.Split(from, ",") {
			id = strings.TrimSpace(id)
			n := workflow.Find(sources, id)
			if n == nil {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "step not found: " + id})
			}
			entries = append(entries, n)
		}
	}
	return c.JSON(workflow.Flatten(entries...))
}

// ── Steps ─────────────────────────────────────────────────────────────

func (h *api) addStep(c fiber.Ctx) error {
	var st workflow.Step
	if err := c.Bind().JSON(&st); err != nil {
		return badRequest(c, "invalid body")
	}
	if _, err := steps.Decode(st); err != nil {
		return fail(c, err)
	}
	id, err := h.store.AddStep(c.Context(), c.Params("id"), &st)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (h *api) updateStep(c fiber.Ctx) error {
	var st workflow.Step
	if err := c.Bind().JSON(&st); err != nil {
		return badRequest(c, "invalid body")
	}
	st.ID = c.Params("step")
	if _, err := steps.Decode(st); err != nil {
		return fail(c, err)
	}
	if err := h.store.UpdateStep(c.Context(), c.Params("id"), &st); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *api) deleteStep(c fiber.Ctx) error {
	if err := h.store.DeleteStep(c.Context(), c.Params("id"), c.Params("step")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Edges ─────────────────────────────────────────────────────────────

func (h *api) addEdge(c fiber.Ctx) error {
	var e edgeBody
	if err := c.Bind().JSON(&e); err != nil {
		return badRequest(c, "invalid body")
	}
	if e.From == "" || e.To == "" {
		return badRequest(c, "from and to are required")
	}
	if err := h.store.AddEdge(c.Context(), c.Params("id"), e.From, e.To); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *api) deleteEdge(c fiber.Ctx) error {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		return badRequest(c, "from and to are required")
	}
	if err := h.store.DeleteEdge(c.Context(), c.Params("id"), from, to); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Runs ──────────────────────────────────────────────────────────────

func (h *api) startRun(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.runTimeout)
	defer cancel()

	run, err := h.runs.Start(ctx, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *api) listRuns(c fiber.Ctx) error {
	if _, err := h.load(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	runs, err := h.store.ListRuns(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(runs)
}

func (h *api) getRun(c fiber.Ctx) error {
	run, err := h.store.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if run == nil {
		return fail(c, workflow.ErrRunNotFound)
	}
	return c.JSON(run)
}

// ── Validate ──────────────────────────────────────────────────────────

func (h *api) validate(c fiber.Ctx) error {
	var d workflow.Descriptor
	if err := c.Bind().JSON(&d); err != nil {
		return badRequest(c, "invalid body")
	}

	var opts []workflow.Option
	if c.Query("strict") == "true" {
		opts = append(opts, workflow.Strict())
	}
	sources, err := workflow.Materialize(&d, opts...)
	if err != nil {
		return fail(c, err)
	}
	if c.Query("payloads") == "true" {
		if err := steps.ValidateGraph(&d); err != nil {
			return fail(c, err)
		}
	}
	return c.JSON(describeSources(sources))
}

// load fetches a workflow, mapping a missing one to ErrWorkflowNotFound.
func (h *api) load(ctx context.Context, id string) (*workflow.Workflow, error) {
	w, err := h.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, workflow.ErrWorkflowNotFound
	}
	return w, nil
}

func describeSources(sources []*workflow.Node) sourcesBody {
	out := sourcesBody{Sources: ids(sources), Components: [][]string{}}
	for _, group := range workflow.Components(sources) {
		out.Components = append(out.Components, ids(group))
	}
	return out
}

func ids(nodes []*workflow.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}
