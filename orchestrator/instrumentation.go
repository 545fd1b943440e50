package orchestrator

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/aryandadwal2006/PsychAI-Version-1/orchestrator"

var tracer = otel.Tracer(scopeName)
