// Package threat maps classification text to a severity assessment via
// keyword and pattern analysis. Scoring is deterministic and stateless.
package threat

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Level is a threat severity tier
type Level string

const (
	LevelNone     Level = "NONE"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Score bounds
const (
	MinScore = 1
	MaxScore = 5
)

// Assessment is the result of analyzing one classification
type Assessment struct {
	Timestamp         time.Time `json:"timestamp"`
	FrameID           string    `json:"frame_id"`
	Classification    string    `json:"classification"`
	Detected          bool      `json:"threat_detected"`
	Level             Level     `json:"threat_level"`
	Score             int       `json:"threat_score"`
	Reasons           []string  `json:"threat_reasons,omitempty"`
	MatchedKeywords   []string  `json:"matched_keywords,omitempty"`
	Confidence        int       `json:"confidence"`
	RecommendedAction string    `json:"recommended_action"`
}

// tierPattern associates a compiled pattern with the score it implies
type tierPattern struct {
	re    *regexp.Regexp
	score int
	tier  string
}

// Scorer analyzes classification text for threats
type Scorer struct {
	threshold      int
	patterns       []tierPattern
	normalPatterns []*regexp.Regexp
}

// Config contains threat scorer configuration
type Config struct {
	AlertThreshold int // Minimum score (1-5) that counts as detected
}

// Severity tier patterns. Matching is a max over all tiers: a CRITICAL hit
// wins regardless of lower-tier matches that also fire.
var (
	criticalPatterns = []string{
		`\b(gun|weapon|knife|pistol|rifle|firearm|armed|shooting|scissor)\b`,
		`\b(violence|fight|attack|assault|blood)\b`,
		`\b(breaking|smashing|destroying|vandal|damage)\b`,
		`\b(fire|smoke|explosion|flames|burning)\b`,
		`\b(breaking.{0,10}(in|into|through)|forced.{0,10}entry)\b`,
		`\b(intruder|burglar|break-in)\b`,
	}
	highPatterns = []string{
		`\b(unauthorized|suspicious.{0,10}person|unknown.{0,10}individual)\b`,
		`\b(lurking|hiding|sneaking|prowling)\b`,
		`\b(mask|hood|face.{0,10}covered|disguise)\b`,
		`\b(climbing.{0,10}(fence|wall)|jumping.{0,10}fence)\b`,
	}
	mediumPatterns = []string{
		`\b(abandoned.{0,10}(bag|package)|unattended.{0,10}item)\b`,
		`\b(loitering|lingering|watching)\b`,
		`\b(at.{0,10}night|after.{0,10}hours|dark)\b`,
		`\b(unusual.{0,10}activity|strange.{0,10}behavior)\b`,
	}
	// Indicators of routine activity; each match reduces the score one level
	normalPatternSrcs = []string{
		`\b(employee|worker|staff|security|guard)\b`,
		`\b(uniform|badge|identification)\b`,
		`\b(delivery|service|repair|maintenance)\b`,
	}
)

// recommendedActions maps each severity level to an operator action
var recommendedActions = map[Level]string{
	LevelCritical: "immediate_response",
	LevelHigh:     "investigate_immediately",
	LevelMedium:   "monitor_closely",
	LevelLow:      "log_for_review",
	LevelNone:     "none",
}

// NewScorer creates a threat scorer
func NewScorer(cfg Config) *Scorer {
	threshold := cfg.AlertThreshold
	if threshold < MinScore || threshold > MaxScore {
		threshold = 3
	}

	s := &Scorer{threshold: threshold}

	compile := func(srcs []string, score int, tier string) {
		for _, src := range srcs {
			s.patterns = append(s.patterns, tierPattern{
				re:    regexp.MustCompile(`(?i)` + src),
				score: score,
				tier:  tier,
			})
		}
	}
	compile(criticalPatterns, 5, "Critical")
	compile(highPatterns, 4, "High")
	compile(mediumPatterns, 3, "Medium")

	for _, src := range normalPatternSrcs {
		s.normalPatterns = append(s.normalPatterns, regexp.MustCompile(`(?i)`+src))
	}

	return s
}

// AnalyzeThreat derives a severity assessment from classification text.
// The assigned level is a max over all matched tiers; normal-activity
// indicators then subtract one level each, floored at the minimum score.
func (s *Scorer) AnalyzeThreat(classification, frameID string) *Assessment {
	text := strings.ToLower(classification)

	score := MinScore
	var reasons []string
	var keywords []string

	for _, p := range s.patterns {
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		if p.score > score {
			score = p.score
		}
		reasons = append(reasons, fmt.Sprintf("%s threat: %s", p.tier, match))
		keywords = append(keywords, match)
	}

	normalCount := 0
	for _, re := range s.normalPatterns {
		if re.MatchString(text) {
			normalCount++
		}
	}
	if normalCount > 0 {
		score -= normalCount
		if score < MinScore {
			score = MinScore
		}
		reasons = append(reasons, fmt.Sprintf("Normal activity indicators: %d", normalCount))
	}

	level := LevelForScore(score)

	return &Assessment{
		Timestamp:         time.Now(),
		FrameID:           frameID,
		Classification:    classification,
		Detected:          score >= s.threshold && level != LevelNone,
		Level:             level,
		Score:             score,
		Reasons:           reasons,
		MatchedKeywords:   keywords,
		Confidence:        confidence(len(keywords), normalCount),
		RecommendedAction: recommendedActions[level],
	}
}

// LevelForScore converts a 1-5 score to its severity level
func LevelForScore(score int) Level {
	switch {
	case score >= 5:
		return LevelCritical
	case score >= 4:
		return LevelHigh
	case score >= 3:
		return LevelMedium
	case score >= 2:
		return LevelLow
	default:
		return LevelNone
	}
}

// confidence derives a percentage from the number of threat and normal
// indicators. More and stronger matches raise confidence; normal indicators
// lower it. Clamped to [10, 95].
func confidence(threatIndicators, normalIndicators int) int {
	c := 50
	if threatIndicators > 0 {
		boost := threatIndicators * 15
		if boost > 40 {
			boost = 40
		}
		c += boost
	}
	if normalIndicators > 0 {
		penalty := normalIndicators * 10
		if penalty > 30 {
			penalty = 30
		}
		c -= penalty
	}

	if c < 10 {
		c = 10
	}
	if c > 95 {
		c = 95
	}
	return c
}

// Summary renders a human-readable assessment summary
func (a *Assessment) Summary() string {
	lines := []string{
		fmt.Sprintf("THREAT LEVEL: %s", a.Level),
		fmt.Sprintf("Confidence: %d%%", a.Confidence),
		fmt.Sprintf("Score: %d/%d", a.Score, MaxScore),
		fmt.Sprintf("Frame: %s", a.FrameID),
		fmt.Sprintf("Time: %s", a.Timestamp.Format("2006-01-02 15:04:05")),
	}

	if len(a.Reasons) > 0 {
		lines = append(lines, "Threat indicators:")
		for i, reason := range a.Reasons {
			if i >= 5 {
				break
			}
			lines = append(lines, "  - "+reason)
		}
	}

	return strings.Join(lines, "\n")
}
