package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"logwarden/internal/model"
)

var (
	ErrModelUnavailable = errors.New("classifier not ready")
	ErrInference        = errors.New("inference failed")
)

// Classifier is the external model collaborator. Classify must be
// idempotent and side-effect-free from the pipeline's point of view.
type Classifier interface {
	Ready() bool
	Classify(ctx context.Context, text string) (model.Classification, error)
}

type Dispatcher struct {
	classifier Classifier
	logger     *slog.Logger
}

func NewDispatcher(classifier Classifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{classifier: classifier, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, text string) (model.Classification, error) {
	if d.classifier == nil || !d.classifier.Ready() {
		return model.Classification{}, ErrModelUnavailable
	}
	cls, err := d.classifier.Classify(ctx, text)
	if err != nil {
		return model.Classification{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if !model.ValidClassID(cls.ClassID) {
		return model.Classification{}, fmt.Errorf("%w: class id %d out of range", ErrInference, cls.ClassID)
	}
	normalizeResult(&cls)
	return cls, nil
}

func normalizeResult(cls *model.Classification) {
	if cls.AnomalyScore < 0 {
		cls.AnomalyScore = 0
	}
	if cls.AnomalyScore > 1 {
		cls.AnomalyScore = 1
	}
	if cls.ClassName == "" {
		cls.ClassName = model.ClassName(cls.ClassID)
	}
	if cls.Severity == "" {
		cls.Severity = model.ClassSeverity(cls.ClassID)
	}
	cls.IsAnomaly = cls.ClassID != 0
}
