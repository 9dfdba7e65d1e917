// Package schema defines the canonical event model shared by adapters,
// stores, the dispatcher, and consumers.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quantfold/tip/errs"
)

// Version is the canonical schema version stamped on every event.
const Version = "v1"

// DefaultSeverity is applied when an adapter does not grade a record.
const DefaultSeverity = 50

// EventType enumerates canonical event categories.
type EventType string

const (
	// EventTypeDisclosureFiling identifies regulatory filing events.
	EventTypeDisclosureFiling EventType = "DISCLOSURE.FILING"
	// EventTypeSocialMentions identifies social forum mention events.
	EventTypeSocialMentions EventType = "SOCIAL.MENTIONS"
	// EventTypeMarketBar identifies OHLCV bar events.
	EventTypeMarketBar EventType = "MARKET.BAR"
	// EventTypeModelInsight identifies model-generated annotations.
	EventTypeModelInsight EventType = "MODEL.INSIGHT"
	// EventTypeSystemHealth identifies pipeline health events.
	EventTypeSystemHealth EventType = "SYSTEM.HEALTH"
)

// Source enumerates the systems events originate from.
type Source string

const (
	// SourceEdgar marks events fetched from the regulatory filing feed.
	SourceEdgar Source = "edgar"
	// SourceWSB marks events fetched from the retail forum feed.
	SourceWSB Source = "wsb"
	// SourceMarket marks events derived from market data.
	SourceMarket Source = "market"
	// SourceLLM marks events produced by model annotators.
	SourceLLM Source = "llm"
	// SourceSystem marks events produced by the pipeline itself.
	SourceSystem Source = "system"
)

// PayloadRefs carries object-store URIs for the artifacts tied to an event.
type PayloadRefs struct {
	Raw        string `json:"raw,omitempty"`
	Normalized string `json:"normalized,omitempty"`
	Enriched   string `json:"enriched,omitempty"`
}

// EventV1 is the canonical envelope persisted, outboxed, and replayed by the
// pipeline. Wire form uses camelCase keys; see Encode and Decode.
type EventV1 struct {
	EventID       string         `json:"eventId" validate:"required,uuid4"`
	SchemaVersion string         `json:"schemaVersion" validate:"required,eq=v1"`
	EventType     EventType      `json:"eventType" validate:"required,oneof=DISCLOSURE.FILING SOCIAL.MENTIONS MARKET.BAR MODEL.INSIGHT SYSTEM.HEALTH"`
	Source        Source         `json:"source" validate:"required,oneof=edgar wsb market llm system"`
	Symbol        string         `json:"symbol,omitempty" validate:"omitempty,ticker"`
	EntityID      string         `json:"entityId,omitempty"`
	TsEvent       time.Time      `json:"tsEvent" validate:"required"`
	TsIngested    time.Time      `json:"tsIngested" validate:"required"`
	DedupeKey     string         `json:"dedupeKey" validate:"required"`
	Severity      int            `json:"severity" validate:"gte=0,lte=100"`
	Confidence    *float64       `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Payload       map[string]any `json:"payload"`
	PayloadRefs   PayloadRefs    `json:"payloadRefs"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("ticker", validTicker); err != nil {
		panic(fmt.Sprintf("register ticker validation: %v", err))
	}
	return v
}

// validTicker enforces the symbol pattern: 1 to 16 characters drawn from
// uppercase letters, dot, and dash.
func validTicker(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 1 || len(s) > 16 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// Validate checks the envelope against the canonical constraints and returns
// an invalid_event error naming the first offending field.
func (e EventV1) Validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errs.InvalidEvent(fe.Field(), describeFailure(fe))
	}
	return errs.New("schema", errs.CodeInvalidEvent, errs.WithCause(err))
}

func describeFailure(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "value required"
	case "uuid4":
		return "must be a version 4 UUID"
	case "eq":
		return fmt.Sprintf("must equal %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "ticker":
		return "must match ^[A-Z.\\-]{1,16}$"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s constraint", fe.Tag())
	}
}
