package coach

import (
	"regexp"
	"strings"
)

// Topic is the coarse subject classification of an utterance, used to steer
// the suggestion prompt.
type Topic string

const (
	TopicGeneral     Topic = "general"
	TopicPricing     Topic = "pricing"
	TopicTechnical   Topic = "technical"
	TopicSecurity    Topic = "security"
	TopicComparison  Topic = "comparison"
	TopicTimeline    Topic = "timeline"
	TopicIntegration Topic = "integration"
	TopicSupport     Topic = "support"
)

// questionPatterns detect utterances phrased as questions.
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?$`),
	regexp.MustCompile(`^(what|how|why|when|where|who|which|can|could|would|should|is|are|do|does|did)\b`),
	regexp.MustCompile(`(tell me|explain|describe|show me|help me understand|walk me through)`),
	regexp.MustCompile(`(wondering|curious|want to know|like to know|interested in)`),
}

// opportunityPatterns detect topics worth responding to even without a
// question.
var opportunityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(need help|looking for|interested in|want to|trying to|struggling with)`),
	regexp.MustCompile(`(our (current|existing) (infrastructure|system|platform|setup))`),
	regexp.MustCompile(`(pain point|challenge|problem|issue|difficulty|bottleneck)`),
	regexp.MustCompile(`(migrate|migration|modernize|modernization|transform|transformation)`),
	regexp.MustCompile(`(kubernetes|k8s|containers|docker|cloud|aws|azure|gcp)`),
	regexp.MustCompile(`(ai|artificial intelligence|machine learning|ml|mlops|genai|generative)`),
	regexp.MustCompile(`(cost|expensive|budget|spending|optimize|savings)`),
	regexp.MustCompile(`(security|compliance|soc|hipaa|gdpr|vulnerability)`),
	regexp.MustCompile(`(devops|ci/?cd|deployment|infrastructure.as.code|terraform)`),
	regexp.MustCompile(`(data (pipeline|engineering|warehouse|lake)|analytics|databricks|snowflake)`),
	regexp.MustCompile(`(legacy|monolith|technical debt|outdated|old system)`),
}

// acknowledgmentStarters open utterances that are filler rather than content.
var acknowledgmentStarters = []string{
	"okay", "ok", "sure", "yes", "no", "right", "yeah", "yep", "uh huh",
	"mhm", "hmm", "alright", "absolutely", "definitely", "exactly",
	"i see", "i understand", "got it", "makes sense",
}

// topicPatterns classify an utterance's subject. Order matters: the first
// matching topic wins.
var topicPatterns = []struct {
	topic    Topic
	patterns []*regexp.Regexp
}{
	{TopicPricing, []*regexp.Regexp{
		regexp.MustCompile(`(price|pricing|cost|budget|expensive|cheap|afford|pay|fee|subscription|license)`),
		regexp.MustCompile(`(how much|what.*cost|pricing model|payment)`),
	}},
	{TopicTechnical, []*regexp.Regexp{
		regexp.MustCompile(`(api|sdk|integration|architecture|infrastructure|scalab|perform|latency)`),
		regexp.MustCompile(`(technical|technology|stack|framework|language|database|cloud)`),
		regexp.MustCompile(`(kubernetes|docker|aws|azure|gcp|terraform|ci/cd|devops)`),
	}},
	{TopicSecurity, []*regexp.Regexp{
		regexp.MustCompile(`(security|secure|encrypt|compliance|gdpr|hipaa|soc|iso|audit)`),
		regexp.MustCompile(`(authentication|authorization|permission|access control|sso|mfa)`),
	}},
	{TopicComparison, []*regexp.Regexp{
		regexp.MustCompile(`(compare|comparison|versus|vs\.|differ|better|worse|alternative)`),
		regexp.MustCompile(`(competitor|similar|like.*other|choose between)`),
	}},
	{TopicTimeline, []*regexp.Regexp{
		regexp.MustCompile(`(timeline|deadline|time|when|how long|duration|schedule)`),
		regexp.MustCompile(`(implement|deploy|rollout|migration|onboard)`),
	}},
	{TopicIntegration, []*regexp.Regexp{
		regexp.MustCompile(`(integrate|integration|connect|compatible|work with|support)`),
		regexp.MustCompile(`(plugin|extension|addon|api|webhook|sync)`),
	}},
	{TopicSupport, []*regexp.Regexp{
		regexp.MustCompile(`(support|help|assistance|service|sla|uptime|guarantee)`),
		regexp.MustCompile(`(customer success|onboarding|training|documentation)`),
	}},
}

// IsActionable reports whether an utterance is worth generating a suggestion
// for: a question, or a topic that presents a coaching opportunity. Bare
// acknowledgments are never actionable.
func IsActionable(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}

	for _, starter := range acknowledgmentStarters {
		if strings.HasPrefix(lower, starter) {
			return false
		}
	}

	for _, p := range questionPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	for _, p := range opportunityPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// ClassifyTopic returns the subject classification of an utterance.
// Unrecognised subjects classify as [TopicGeneral].
func ClassifyTopic(text string) Topic {
	lower := strings.ToLower(text)
	for _, tp := range topicPatterns {
		for _, p := range tp.patterns {
			if p.MatchString(lower) {
				return tp.topic
			}
		}
	}
	return TopicGeneral
}
