package main

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/meikuraledutech/pipeline"
	"github.com/meikuraledutech/pipeline/internal/tracer"
)

type api struct {
	store  pipeline.Store
	layout pipeline.LayoutParams
	log    *slog.Logger
}

// newApp wires the pipeline routes onto a fiber app.
func newApp(store pipeline.Store, layout pipeline.LayoutParams, log *slog.Logger) *fiber.App {
	a := &api{store: store, layout: layout, log: log}
	app := fiber.New()

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Pipelines ─────────────────────────────────────────────────────
	app.Post("/pipelines", a.createPipeline)

	app.Get("/pipelines/:id", func(c fiber.Ctx) error {
		g, err := store.GetGraph(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if g == nil {
			return c.Status(404).JSON(fiber.Map{"error": "pipeline not found"})
		}
		return c.JSON(g)
	})

	app.Delete("/pipelines/:id", func(c fiber.Ctx) error {
		if err := store.DeleteGraph(c.Context(), c.Params("id")); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.SendStatus(204)
	})

	// ── Actions ───────────────────────────────────────────────────────
	app.Post("/pipelines/:id/actions", a.applyAction)

	app.Get("/pipelines/:id/actions", func(c fiber.Ctx) error {
		records, err := store.ListActions(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(records)
	})

	// ── Layout ────────────────────────────────────────────────────────
	app.Post("/pipelines/:id/layout", a.relayout)

	return app
}

func (a *api) createPipeline(c fiber.Ctx) error {
	ctx, span := tracer.StartSpan(c.Context(), "pipeline.synthesize")
	var err error
	defer func() { tracer.End(span, err) }()

	p, err := pipeline.DecodePayload(c.Body())
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	g, warnings, err := pipeline.Synthesize(p)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	for _, w := range warnings {
		a.log.Warn("synthesis dropped entry",
			"level_key", w.LevelKey, "agent", w.AgentName, "reason", w.Reason)
	}

	created, err := a.store.CreateGraph(ctx, pipeline.Layout(g, a.layout))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	span.SetAttributes(
		attribute.String("pipeline.id", created.ID),
		attribute.Int("pipeline.stages", len(created.Stages)),
		attribute.Int("pipeline.agents", len(created.Agents)),
	)
	a.log.Info("pipeline synthesized", "id", created.ID,
		"stages", len(created.Stages), "agents", len(created.Agents), "warnings", len(warnings))

	if warnings == nil {
		warnings = []pipeline.Warning{}
	}
	return c.Status(201).JSON(fiber.Map{"pipeline": created, "warnings": warnings})
}

func (a *api) applyAction(c fiber.Ctx) error {
	graphID := c.Params("id")
	ctx, span := tracer.StartSpan(c.Context(), "pipeline.apply", attribute.String("pipeline.id", graphID))
	var err error
	defer func() { tracer.End(span, err) }()

	action, err := pipeline.DecodeAction(c.Body())
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	span.SetAttributes(attribute.String("pipeline.action", action.Kind()))

	var changed []pipeline.EntityRef
	g, err := a.store.UpdateGraph(ctx, graphID, func(current *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
		next, refs, err := pipeline.Apply(current, action)
		if err != nil {
			return nil, nil, err
		}
		payload, err := pipeline.EncodeAction(action)
		if err != nil {
			return nil, nil, err
		}
		changed = refs
		return next, &pipeline.ActionRecord{Kind: action.Kind(), Payload: payload, Changed: refs}, nil
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownReference) {
			a.log.Info("action rejected", "pipeline", graphID, "action", action.Kind(), "error", err)
		}
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}

	if changed == nil {
		changed = []pipeline.EntityRef{}
	}
	return c.JSON(fiber.Map{"pipeline": g, "changed": changed})
}

// relayout repositions every entity. An empty body resets to the configured
// spacing.
func (a *api) relayout(c fiber.Ctx) error {
	params := a.layout
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&params); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	g, err := a.store.UpdateGraph(c.Context(), c.Params("id"), func(current *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
		return pipeline.Layout(current, params), nil, nil
	})
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(g)
}

func statusFor(err error) int {
	var synth *pipeline.SynthesisError
	switch {
	case errors.As(err, &synth), errors.Is(err, pipeline.ErrInvalidAction):
		return 400
	case errors.Is(err, pipeline.ErrGraphNotFound):
		return 404
	case errors.Is(err, pipeline.ErrUnknownReference), errors.Is(err, pipeline.ErrInvalidGraph):
		return 422
	default:
		return 500
	}
}
