package routing

import (
	"errors"
	"fmt"

	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/quiethours"
)

var errNoRuleMatched = errors.New("no rule matched")

// Selector picks a delivery strategy by walking an ordered rule table.
type Selector struct {
	rules []Rule
	quiet QuietFunc
	sink  ErrorSink
}

// NewSelector creates a Selector over DefaultRules reporting recovered
// errors to sink.
func NewSelector(sink ErrorSink) *Selector {
	return NewSelectorWithRules(DefaultRules(), quiethours.IsQuietNow, sink)
}

// NewSelectorWithRules creates a Selector over a custom rule table.
func NewSelectorWithRules(rules []Rule, quiet QuietFunc, sink ErrorSink) *Selector {
	if quiet == nil {
		quiet = quiethours.IsQuietNow
	}
	if sink == nil {
		sink = LogSink{}
	}
	return &Selector{rules: rules, quiet: quiet, sink: sink}
}

// SelectStrategy returns the strategy of the first matching rule. It never
// fails: a rule that errors or panics yields the fallback strategy and the
// error goes to the sink.
func (s *Selector) SelectStrategy(dc model.DeliveryContext, prefs model.NotificationPreferences) (strategy model.DeliveryStrategy) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			strategy = s.fallback(&StrategyEvaluationError{Rule: current, Err: fmt.Errorf("panic: %v", r)}, dc)
		}
	}()

	e := &Evaluation{Context: dc, Prefs: prefs, quiet: s.quiet}
	for _, rule := range s.rules {
		current = rule.Name
		ok, err := rule.Match(e)
		if err != nil {
			return s.fallback(&StrategyEvaluationError{Rule: rule.Name, Err: err}, dc)
		}
		if ok {
			return rule.Build(e)
		}
	}
	return s.fallback(&StrategyEvaluationError{Rule: current, Err: errNoRuleMatched}, dc)
}

func (s *Selector) fallback(err error, dc model.DeliveryContext) model.DeliveryStrategy {
	s.sink.Report(err, dc)
	return model.DeliveryStrategy{
		Name:            model.StrategyFallback,
		ShouldSendInApp: true,
		Reasoning:       "strategy evaluation failed, falling back to in-app only",
	}
}
