package eventbridge

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownTopic receives every subject no rule matches, so bad mappings stay visible.
const UnknownTopic = "unknown:updates"

// Rule maps a subject pattern to a local topic. A trailing "*" or ">" makes the
// pattern a prefix match; anything else must match the subject exactly.
type Rule struct {
	Subject string `yaml:"subject"`
	Topic   string `yaml:"topic"`
}

func DefaultRules() []Rule {
	return []Rule{
		{Subject: "bus.extensions.events.*", Topic: "extensions:updates"},
		{Subject: "bus.messages.events.*", Topic: "messages:updates"},
		{Subject: "bus.policies.events.*", Topic: "policies:updates"},
		{Subject: "bus.usage.events.*", Topic: "usage:updates"},
	}
}

type compiledRule struct {
	match  string
	prefix bool
	topic  string
}

// TopicMapper is immutable after construction and safe for concurrent use.
type TopicMapper struct {
	rules []compiledRule
	src   []Rule
}

func NewTopicMapper(rules []Rule) (*TopicMapper, error) {
	m := &TopicMapper{src: append([]Rule(nil), rules...)}
	for i, r := range rules {
		subject, topic := strings.TrimSpace(r.Subject), strings.TrimSpace(r.Topic)
		if subject == "" || topic == "" {
			return nil, fmt.Errorf("topic rule %d: subject and topic are required", i)
		}
		cr := compiledRule{match: subject, topic: topic}
		if strings.HasSuffix(subject, "*") || strings.HasSuffix(subject, ">") {
			cr.match = subject[:len(subject)-1]
			cr.prefix = true
		}
		m.rules = append(m.rules, cr)
	}
	// Exact rules first, then longest prefix; ties keep declaration order.
	sort.SliceStable(m.rules, func(i, j int) bool {
		a, b := m.rules[i], m.rules[j]
		if a.prefix != b.prefix {
			return !a.prefix
		}
		return len(a.match) > len(b.match)
	})
	return m, nil
}

// Map returns the topic for subject, UnknownTopic when nothing matches.
func (m *TopicMapper) Map(subject string) string {
	for _, r := range m.rules {
		if r.prefix {
			if strings.HasPrefix(subject, r.match) {
				return r.topic
			}
			continue
		}
		if subject == r.match {
			return r.topic
		}
	}
	return UnknownTopic
}

// Rules returns the rules the mapper was built from.
func (m *TopicMapper) Rules() []Rule {
	return append([]Rule(nil), m.src...)
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML file of the form:
//
//	rules:
//	  - subject: bus.extensions.events.*
//	    topic: extensions:updates
func LoadRules(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse topic rules %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("topic rules %s: no rules", path)
	}
	return f.Rules, nil
}
