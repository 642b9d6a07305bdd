package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/99designs/gqlgen/graphql"
	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/UkralStul/watchedit/internal/domain"
	"github.com/UkralStul/watchedit/internal/movieapi"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// executableSchema исполняет запросы и подписки по схеме из schema.graphqls.
// Значения резолверов сериализуются в JSON по их тегам, а затем из них
// выбираются запрошенные поля.
type executableSchema struct {
	resolver *Resolver
	queries  map[string]fieldResolver
}

func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: r, queries: r.queries()}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)

	switch opCtx.Operation.Operation {
	case ast.Query:
		first := true
		return func(ctx context.Context) *graphql.Response {
			if !first {
				return nil
			}
			first = false
			return e.execQuery(ctx, opCtx)
		}
	case ast.Subscription:
		return e.execSubscription(ctx, opCtx)
	default:
		return graphql.OneShot(&graphql.Response{
			Errors: gqlerror.List{gqlerror.Errorf("unsupported GraphQL operation: %s", opCtx.Operation.Operation)},
		})
	}
}

func (e *executableSchema) execQuery(ctx context.Context, opCtx *graphql.OperationContext) *graphql.Response {
	out := &orderedMap{}
	var errs gqlerror.List

	for _, f := range graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Query"}) {
		path := ast.Path{ast.PathName(f.Alias)}

		switch f.Name {
		case "__typename":
			out.set(f.Alias, "Query")
			continue
		case "__schema", "__type":
			errs = append(errs, gqlerror.ErrorPathf(path, "introspection is not supported"))
			out.set(f.Alias, nil)
			continue
		}

		resolve, ok := e.queries[f.Name]
		if !ok {
			errs = append(errs, gqlerror.ErrorPathf(path, "unknown field %s", f.Name))
			out.set(f.Alias, nil)
			continue
		}

		value, err := resolve(ctx, f.ArgumentMap(opCtx.Variables))
		if err == nil {
			value, err = shape(opCtx, value, parsedSchema.Query.Fields.ForName(f.Name).Type, f.Selections)
		}
		if err != nil {
			errs = append(errs, presentError(path, err))
			out.set(f.Alias, nil)
			continue
		}
		out.set(f.Alias, value)
	}

	data, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode graphql response")
		return &graphql.Response{Errors: gqlerror.List{gqlerror.Errorf("internal error")}}
	}
	return &graphql.Response{Data: data, Errors: errs}
}

// execSubscription отдает по ответу на каждое событие, пока клиент не отпишется.
func (e *executableSchema) execSubscription(ctx context.Context, opCtx *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(opCtx, opCtx.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 || fields[0].Name != "postEvents" {
		return graphql.OneShot(&graphql.Response{
			Errors: gqlerror.List{gqlerror.Errorf("subscription must select exactly one field: postEvents")},
		})
	}
	f := fields[0]
	path := ast.Path{ast.PathName(f.Alias)}

	stream, err := e.resolver.subscribe(ctx, f.ArgumentMap(opCtx.Variables))
	if err != nil {
		return graphql.OneShot(&graphql.Response{Errors: gqlerror.List{presentError(path, err)}})
	}
	typ := parsedSchema.Subscription.Fields.ForName(f.Name).Type

	return func(ctx context.Context) *graphql.Response {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			value, err := shape(opCtx, ev, typ, f.Selections)
			if err != nil {
				return &graphql.Response{Errors: gqlerror.List{presentError(path, err)}}
			}
			out := &orderedMap{}
			out.set(f.Alias, value)
			data, err := json.Marshal(out)
			if err != nil {
				return &graphql.Response{Errors: gqlerror.List{presentError(path, err)}}
			}
			return &graphql.Response{Data: data}
		}
	}
}

// shape превращает значение резолвера в ответ с запрошенными полями типа typ.
func shape(opCtx *graphql.OperationContext, value any, typ *ast.Type, sel ast.SelectionSet) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", typ.Name(), err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", typ.Name(), err)
	}
	return selectFields(opCtx, tree, typ, sel), nil
}

func selectFields(opCtx *graphql.OperationContext, v any, typ *ast.Type, sel ast.SelectionSet) any {
	if v == nil {
		return nil
	}
	if typ.Elem != nil {
		items, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = selectFields(opCtx, item, typ.Elem, sel)
		}
		return out
	}

	def := parsedSchema.Types[typ.NamedType]
	if def == nil || def.Kind != ast.Object {
		return scalar(typ.NamedType, v)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	out := &orderedMap{}
	for _, f := range graphql.CollectFields(opCtx, sel, []string{def.Name}) {
		if f.Name == "__typename" {
			out.set(f.Alias, def.Name)
			continue
		}
		fd := def.Fields.ForName(f.Name)
		if fd == nil {
			out.set(f.Alias, nil)
			continue
		}
		out.set(f.Alias, selectFields(opCtx, obj[f.Name], fd.Type, f.Selections))
	}
	return out
}

// scalar приводит значение к виду скаляра GraphQL. ID всегда строка.
func scalar(name string, v any) any {
	if name != "ID" {
		return v
	}
	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// presentError скрывает внутренние ошибки от клиента и логирует их.
func presentError(path ast.Path, err error) *gqlerror.Error {
	var statusErr *movieapi.StatusError
	msg := "Something went wrong"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		msg = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		msg = "Not found"
	case errors.Is(err, movieapi.ErrTransport), errors.Is(err, movieapi.ErrSchema), errors.As(err, &statusErr):
		log.Warn().Err(err).Str("field", path.String()).Msg("movie api request failed")
		msg = "Movie service is unavailable"
	default:
		log.Error().Err(err).Str("field", path.String()).Msg("graphql field failed")
	}
	return &gqlerror.Error{Err: err, Message: msg, Path: path}
}

func stringArg(args map[string]any, name string) string {
	switch v := args[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func idArg(args map[string]any, name string) (int64, error) {
	id, err := strconv.ParseInt(stringArg(args, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, name)
	}
	return id, nil
}

// orderedMap - JSON-объект с полями в порядке запроса.
type orderedMap struct {
	keys   []string
	values []any
}

func (m *orderedMap) set(key string, value any) {
	for i, k := range m.keys {
		if k == key {
			m.values[i] = value
			return
		}
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
}

func (m *orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
