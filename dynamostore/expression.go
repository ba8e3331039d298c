/*
Package dynamostore – UpdateExpression construction.

Buffered writes that cannot be resolved client-side compile into a single
UpdateExpression with deduplicated attribute name and value substitutions.
*/
package dynamostore

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	ts "github.com/skeldata/typedstore-go"
)

// exprBuilder accumulates SET/REMOVE clauses with #_n / :_n substitutions.
// Repeated attribute names share one alias.
type exprBuilder struct {
	aliases map[string]string
	names   map[string]string
	values  map[string]types.AttributeValue
	sets    []string
	removes []string
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		aliases: map[string]string{},
		names:   map[string]string{},
		values:  map[string]types.AttributeValue{},
	}
}

// name returns the #_n alias for an attribute name, allocating one the
// first time it appears.
func (b *exprBuilder) name(attr string) string {
	if alias, ok := b.aliases[attr]; ok {
		return alias
	}
	alias := fmt.Sprintf("#_%d", len(b.aliases))
	b.aliases[attr] = alias
	b.names[alias] = attr
	return alias
}

// pathExpr aliases every segment of a dotted path.
func (b *exprBuilder) pathExpr(path string) string {
	segs := strings.Split(path, ts.PathSep)
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = b.name(s)
	}
	return strings.Join(out, ".")
}

// value marshals v and returns its :_n placeholder.
func (b *exprBuilder) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", ts.NewError("cannot marshal attribute value",
			ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
	}
	ph := fmt.Sprintf(":_%d", len(b.values))
	b.values[ph] = av
	return ph, nil
}

func (b *exprBuilder) set(clause string)    { b.sets = append(b.sets, clause) }
func (b *exprBuilder) remove(clause string) { b.removes = append(b.removes, clause) }

// expression joins the accumulated clauses.
func (b *exprBuilder) expression() string {
	var parts []string
	if len(b.sets) > 0 {
		parts = append(parts, "SET "+strings.Join(b.sets, ", "))
	}
	if len(b.removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(b.removes, ", "))
	}
	return strings.Join(parts, " ")
}

// addUpdate compiles one field update into the expression. Array transforms
// need the current document value and cannot be expressed blindly.
func (b *exprBuilder) addUpdate(u ts.FieldUpdate, now time.Time) error {
	p := b.pathExpr(u.Path)
	s, isSentinel := u.Value.(ts.Sentinel)
	if !isSentinel {
		ph, err := b.value(u.Value)
		if err != nil {
			return err
		}
		b.set(fmt.Sprintf("%s = %s", p, ph))
		return nil
	}
	switch s.Kind {
	case ts.SentinelDelete:
		b.remove(p)
	case ts.SentinelServerTimestamp:
		ph, err := b.value(now)
		if err != nil {
			return err
		}
		b.set(fmt.Sprintf("%s = %s", p, ph))
	case ts.SentinelIncrement:
		zero, err := b.value(0)
		if err != nil {
			return err
		}
		inc, err := b.value(s.Num)
		if err != nil {
			return err
		}
		b.set(fmt.Sprintf("%s = if_not_exists(%s, %s) + %s", p, p, zero, inc))
	case ts.SentinelArrayUnion, ts.SentinelArrayRemove:
		return ts.NewError(
			fmt.Sprintf("array transform on %q requires reading the document in this transaction first", u.Path),
			ts.WithCode(ts.ErrArgument))
	default:
		return ts.NewError(fmt.Sprintf("unknown sentinel on %q", u.Path),
			ts.WithCode(ts.ErrArgument))
	}
	return nil
}
