package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/raphaelgruber/voxchat/internal/events"
	"github.com/raphaelgruber/voxchat/internal/models"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// ResolverRoot hands out the per-operation resolvers.
type ResolverRoot interface {
	Query() QueryResolver
	Mutation() MutationResolver
	Subscription() SubscriptionResolver
}

type QueryResolver interface {
	Conversations(ctx context.Context) ([]models.ConversationSummary, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	Performance(ctx context.Context) ([]models.PerformanceRecord, error)
	Stats(ctx context.Context) ([]models.ModelStats, error)
	ServerStats(ctx context.Context) (*ServerStats, error)
}

type MutationResolver interface {
	CreateConversation(ctx context.Context, input models.ConversationInput) (*models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	CreateMessage(ctx context.Context, input models.MessageInput) (*models.Message, error)
	RecordPerformance(ctx context.Context, input models.PerformanceInput) (*models.PerformanceRecord, error)
}

type SubscriptionResolver interface {
	Changes(ctx context.Context) (<-chan *events.Event, error)
}

// Config configures the executable schema.
type Config struct {
	Resolvers ResolverRoot
	// Logger receives internal resolver failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewExecutableSchema returns the schema for handler.New. Fields are
// resolved against the validated operation and projected onto the
// selection set, so responses carry exactly the requested fields in order.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &executableSchema{schema: parsedSchema, resolvers: cfg.Resolvers, logger: cfg.Logger}
}

type executableSchema struct {
	// Complexity is only consulted by the complexity limit extension,
	// which the handler does not install.
	graphql.ExecutableSchema

	schema    *ast.Schema
	resolvers ResolverRoot
	logger    *slog.Logger
}

func (e *executableSchema) Schema() *ast.Schema {
	return e.schema
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	switch opCtx.Operation.Operation {
	case ast.Query:
		return graphql.OneShot(e.execRoot(ctx, opCtx, e.schema.Query, e.resolveQuery))
	case ast.Mutation:
		return graphql.OneShot(e.execRoot(ctx, opCtx, e.schema.Mutation, e.resolveMutation))
	case ast.Subscription:
		return e.execSubscription(ctx, opCtx)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

type rootResolver func(ctx context.Context, field graphql.CollectedField, args map[string]any) (any, error)

// execRoot resolves the root fields one after another, which gives
// mutations their required serial order.
func (e *executableSchema) execRoot(ctx context.Context, opCtx *graphql.OperationContext, def *ast.Definition, resolve rootResolver) *graphql.Response {
	if def == nil {
		return graphql.ErrorResponse(ctx, "operation not supported by this schema")
	}

	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{def.Name})
	data := newObject(len(fields))
	var errs gqlerror.List
	nullData := false

	for _, f := range fields {
		if f.Name == "__typename" {
			data.set(f.Alias, def.Name)
			continue
		}
		path := ast.Path{ast.PathName(f.Alias)}

		val, err := resolve(ctx, f, f.ArgumentMap(opCtx.Variables))
		if err == nil {
			val, err = e.complete(opCtx, f.Definition.Type, f.Selections, val)
		}
		if err != nil {
			errs = append(errs, presentError(e.logger, path, err))
			data.set(f.Alias, nil)
			if f.Definition.Type.NonNull {
				nullData = true
			}
			continue
		}
		data.set(f.Alias, val)
	}

	resp := &graphql.Response{Errors: errs}
	if nullData {
		resp.Data = json.RawMessage("null")
		return resp
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return graphql.ErrorResponse(ctx, "encode response: %v", err)
	}
	resp.Data = raw
	return resp
}

func (e *executableSchema) resolveQuery(ctx context.Context, f graphql.CollectedField, args map[string]any) (any, error) {
	q := e.resolvers.Query()
	switch f.Name {
	case "conversations":
		return q.Conversations(ctx)
	case "messages":
		var id string
		if err := decodeArg(args, "conversationId", &id); err != nil {
			return nil, err
		}
		return q.Messages(ctx, id)
	case "performance":
		return q.Performance(ctx)
	case "stats":
		return q.Stats(ctx)
	case "serverStats":
		return q.ServerStats(ctx)
	case "__schema", "__type":
		return nil, fmt.Errorf("%w: introspection is not supported", ErrBadInput)
	}
	return nil, fmt.Errorf("%w: unknown field Query.%s", ErrBadInput, f.Name)
}

func (e *executableSchema) resolveMutation(ctx context.Context, f graphql.CollectedField, args map[string]any) (any, error) {
	m := e.resolvers.Mutation()
	switch f.Name {
	case "createConversation":
		var in models.ConversationInput
		if err := decodeArg(args, "input", &in); err != nil {
			return nil, err
		}
		return m.CreateConversation(ctx, in)
	case "deleteConversation":
		var id string
		if err := decodeArg(args, "id", &id); err != nil {
			return nil, err
		}
		return m.DeleteConversation(ctx, id)
	case "createMessage":
		var in models.MessageInput
		if err := decodeArg(args, "input", &in); err != nil {
			return nil, err
		}
		return m.CreateMessage(ctx, in)
	case "recordPerformance":
		var in models.PerformanceInput
		if err := decodeArg(args, "input", &in); err != nil {
			return nil, err
		}
		return m.RecordPerformance(ctx, in)
	}
	return nil, fmt.Errorf("%w: unknown field Mutation.%s", ErrBadInput, f.Name)
}

// execSubscription resolves the single subscription field and emits one
// response per event until the operation context ends.
func (e *executableSchema) execSubscription(ctx context.Context, opCtx *graphql.OperationContext) graphql.ResponseHandler {
	if e.schema.Subscription == nil {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "subscriptions not supported by this schema"))
	}
	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{e.schema.Subscription.Name})
	if len(fields) != 1 {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "must subscribe to exactly one field"))
	}
	f := fields[0]
	path := ast.Path{ast.PathName(f.Alias)}

	var (
		ch  <-chan *events.Event
		err error
	)
	switch f.Name {
	case "changes":
		ch, err = e.resolvers.Subscription().Changes(ctx)
	default:
		err = fmt.Errorf("%w: unknown field Subscription.%s", ErrBadInput, f.Name)
	}
	if err != nil {
		return graphql.OneShot(&graphql.Response{Errors: gqlerror.List{presentError(e.logger, path, err)}})
	}

	return func(ctx context.Context) *graphql.Response {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			val, err := e.complete(opCtx, f.Definition.Type, f.Selections, ev)
			if err != nil {
				return &graphql.Response{Errors: gqlerror.List{presentError(e.logger, path, err)}}
			}
			data := newObject(1)
			data.set(f.Alias, val)
			raw, err := json.Marshal(data)
			if err != nil {
				return graphql.ErrorResponse(ctx, "encode event: %v", err)
			}
			return &graphql.Response{Data: raw}
		}
	}
}

// complete converts a resolver result to its JSON form and keeps only the
// selected fields.
func (e *executableSchema) complete(opCtx *graphql.OperationContext, typ *ast.Type, sel ast.SelectionSet, v any) (any, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return e.project(opCtx, typ, sel, generic), nil
}

func (e *executableSchema) project(opCtx *graphql.OperationContext, typ *ast.Type, sel ast.SelectionSet, v any) any {
	if v == nil {
		return nil
	}
	if typ.Elem != nil {
		items, _ := v.([]any)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = e.project(opCtx, typ.Elem, sel, item)
		}
		return out
	}

	def := e.schema.Types[typ.NamedType]
	if def == nil || def.IsLeafType() {
		return v
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	fields := graphql.CollectFields(opCtx, sel, []string{def.Name})
	out := newObject(len(fields))
	for _, f := range fields {
		if f.Name == "__typename" {
			out.set(f.Alias, def.Name)
			continue
		}
		out.set(f.Alias, e.project(opCtx, f.Definition.Type, f.Selections, obj[f.Name]))
	}
	return out
}

// toGeneric round-trips v through JSON so struct tags decide field names.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func decodeArg(args map[string]any, name string, dst any) error {
	v, ok := args[name]
	if !ok || v == nil {
		return fmt.Errorf("%w: missing argument %s", ErrBadInput, name)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: argument %s: %v", ErrBadInput, name, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: argument %s: %v", ErrBadInput, name, err)
	}
	return nil
}

// object is a JSON object that keeps its keys in selection order.
type object struct {
	keys []string
	vals []any
}

func newObject(n int) *object {
	return &object{keys: make([]string, 0, n), vals: make([]any, 0, n)}
}

func (o *object) set(key string, v any) {
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, v)
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
