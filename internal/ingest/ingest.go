package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"

	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// ID is an entity ID argument. In a document it is either a number or a
// $ref naming an earlier event.
type ID int64

// Result describes an applied (or partially applied) batch.
type Result struct {
	BatchID string           `json:"batch_id"`
	TrailID int64            `json:"trail_id"`
	Applied int              `json:"applied"`
	Refs    map[string]int64 `json:"refs"`
}

// Ingester replays documents through a Recorder.
type Ingester struct {
	recorder *lineage.Recorder
	logger   *slog.Logger
}

// New creates an ingester. A nil logger discards output.
func New(recorder *lineage.Recorder, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingester{recorder: recorder, logger: logger}
}

// Apply creates the document's trail and applies its events in order. On
// failure it stops at the failing event and returns an *EventError along
// with the partial result; records written before the failure stay.
func (i *Ingester) Apply(ctx context.Context, doc *Document) (*Result, error) {
	res := &Result{
		BatchID: uuid.NewString(),
		Refs:    make(map[string]int64),
	}
	logger := i.logger.With(slog.String("batch_id", res.BatchID))

	trail, err := i.recorder.CreateTrail(ctx, doc.Trail.Name, doc.Trail.ExecutionContext)
	if err != nil {
		return res, err
	}
	res.TrailID = trail.ID
	res.Refs["trail"] = trail.ID

	b := &batch{recorder: i.recorder, refs: res.Refs}
	for idx, ev := range doc.Events {
		if err := ctx.Err(); err != nil {
			return res, &EventError{Index: idx, Op: ev.Op, Err: err}
		}

		h, ok := handlers[ev.Op]
		if !ok {
			return res, &EventError{Index: idx, Op: ev.Op, Err: fmt.Errorf("unknown op %q", ev.Op)}
		}
		id, err := h(ctx, b, ev.Args)
		if err != nil {
			logger.Warn("ingest stopped", slog.Int("event", idx), slog.String("op", ev.Op), slog.Any("error", err))
			return res, &EventError{Index: idx, Op: ev.Op, Err: err}
		}
		if ev.Ref != "" {
			res.Refs[ev.Ref] = id
		}
		res.Applied++
	}

	logger.Info("ingest applied",
		slog.Int64("trail_id", res.TrailID),
		slog.Int("events", res.Applied))
	return res, nil
}

type batch struct {
	recorder *lineage.Recorder
	refs     map[string]int64
}

// decode maps loose event args onto a typed argument struct, resolving
// $ref strings in ID fields.
func (b *batch) decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.DecodeHookFuncType(b.idHook),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}
	return nil
}

var (
	idType     = reflect.TypeOf(ID(0))
	numberType = reflect.TypeOf(json.Number(""))
)

// idHook turns $refs and numbers into IDs. Numbers must be exact integers;
// mapstructure would otherwise truncate 1.9 to 1.
func (b *batch) idHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != idType {
		return data, nil
	}

	switch {
	case from == numberType:
		n, err := data.(json.Number).Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid id %s: not an integer", data)
		}
		return ID(n), nil
	case from.Kind() == reflect.Float32 || from.Kind() == reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("invalid id %v: not an integer", f)
		}
		return ID(f), nil
	case from.Kind() != reflect.String:
		return data, nil
	}

	s := strings.TrimSpace(reflect.ValueOf(data).String())
	if name, ok := strings.CutPrefix(s, "$"); ok {
		id, known := b.refs[name]
		if !known {
			return nil, fmt.Errorf("unknown ref %q", s)
		}
		return ID(id), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q", s)
	}
	return ID(n), nil
}

type tableArgs struct {
	TableID ID `mapstructure:"table_id"`
}

type rowArgs struct {
	Table         ID     `mapstructure:"table"`
	RowIdentifier string `mapstructure:"row_identifier"`
}

type valueArgs struct {
	Row         ID       `mapstructure:"row"`
	ColumnID    ID       `mapstructure:"column_id"`
	Value       *float64 `mapstructure:"value"`
	StringValue *string  `mapstructure:"string_value"`
}

type functionArgs struct {
	Row         ID       `mapstructure:"row"`
	FunctionID  ID       `mapstructure:"function_id"`
	Value       *float64 `mapstructure:"value"`
	StringValue *string  `mapstructure:"string_value"`
}

type refArgs struct {
	Source        ID     `mapstructure:"source"`
	TargetType    string `mapstructure:"target_type"`
	Target        ID     `mapstructure:"target"`
	ReferenceText string `mapstructure:"reference_text"`
}

type handler func(ctx context.Context, b *batch, args map[string]any) (int64, error)

var handlers = map[string]handler{
	"populated_table": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a tableArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordPopulatedTable(ctx, b.refs["trail"], int64(a.TableID))
	},
	"evaluated_table": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a tableArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordEvaluatedTable(ctx, b.refs["trail"], int64(a.TableID))
	},
	"row": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a rowArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordRow(ctx, int64(a.Table), a.RowIdentifier)
	},
	"derived_row": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a rowArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordDerivedRow(ctx, int64(a.Table), a.RowIdentifier)
	},
	"column_value": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a valueArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordColumnValue(ctx, int64(a.Row), int64(a.ColumnID),
			core.Payload{Number: a.Value, Text: a.StringValue})
	},
	"evaluated_function": func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a functionArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		return b.recorder.RecordEvaluatedFunction(ctx, int64(a.Row), int64(a.FunctionID),
			core.Payload{Number: a.Value, Text: a.StringValue})
	},
	"function_column_ref":       referenceHandler(core.RefFunctionColumn),
	"row_source_ref":            referenceHandler(core.RefRowSource),
	"value_source_ref":          referenceHandler(core.RefValueSource),
	"table_source_ref":          referenceHandler(core.RefTableSource),
	"table_creation_column_ref": referenceHandler(core.RefTableCreationColumn),
}

func referenceHandler(kind core.RefKind) handler {
	return func(ctx context.Context, b *batch, args map[string]any) (int64, error) {
		var a refArgs
		if err := b.decode(args, &a); err != nil {
			return 0, err
		}
		if a.ReferenceText != "" && kind != core.RefTableCreationColumn {
			return 0, fmt.Errorf("reference_text is only valid for %s references", core.RefTableCreationColumn)
		}
		return b.recorder.RecordReference(ctx, core.ReferenceEdge{
			Kind:          kind,
			SourceID:      int64(a.Source),
			TargetType:    core.ObjectType(a.TargetType),
			TargetID:      int64(a.Target),
			ReferenceText: a.ReferenceText,
		})
	}
}
