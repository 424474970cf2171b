// Package classifier decides the type of an incoming email: sensitive content
// is flagged locally and never leaves the process, everything else is handed
// to an LLM analyzer together with the user's watch words.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"mailwatch/models"
)

const (
	ReasonSensitive   = "Contains sensitive information"
	ReasonNoAnalyzer  = "No analyzer configured"
	ReasonUnparseable = "AI analysis completed"
	ReasonAlert       = "AI determined as urgent"
	ReasonNotUrgent   = "AI determined as non-urgent"
)

// ErrUnparseable is returned by analyzers whose model answered without a
// usable verdict.
var ErrUnparseable = errors.New("analyzer response could not be parsed")

// WordSource supplies the current moderation lists. store.Store satisfies it.
type WordSource interface {
	SensitiveWords(ctx context.Context) (models.SensitiveWordSet, error)
	WatchWords(ctx context.Context) ([]string, error)
}

// Request is what an analyzer sees of an email.
type Request struct {
	Subject    string
	Body       string
	WatchWords []string
}

// Verdict is an analyzer's answer.
type Verdict struct {
	Alerted bool   `json:"alerted"`
	Reason  string `json:"reason"`
}

type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Verdict, error)
}

type Classifier struct {
	words    WordSource
	analyzer Analyzer
	logger   *logrus.Entry
}

// New builds a Classifier. A nil analyzer classifies every non-sensitive
// email as Non-urgent.
func New(words WordSource, analyzer Analyzer, logger *logrus.Entry) *Classifier {
	if logger == nil {
		logger = logrus.WithField("component", "classifier")
	}
	return &Classifier{words: words, analyzer: analyzer, logger: logger}
}

// Classify returns a record with Type, Title, Reason, MatchedWatchWords and
// BodyPreview filled in. Only a failure to read the word lists is an error;
// analyzer failures are recorded in the reason.
func (c *Classifier) Classify(ctx context.Context, subject, body string) (models.EmailRecord, error) {
	sensitive, err := c.words.SensitiveWords(ctx)
	if err != nil {
		return models.EmailRecord{}, fmt.Errorf("loading sensitive words: %w", err)
	}
	watch, err := c.words.WatchWords(ctx)
	if err != nil {
		return models.EmailRecord{}, fmt.Errorf("loading watch words: %w", err)
	}

	rec := models.EmailRecord{
		Title:             subject,
		BodyPreview:       models.BodyPreview(body),
		MatchedWatchWords: MatchWords(subject, body, watch),
	}
	log := c.logger.WithField("subject", subject)

	if ContainsAny(subject, body, sensitive.All) {
		rec.Type = models.EmailTypeSensitive
		rec.Reason = ReasonSensitive
		log.Warn("Sensitive email, not sent to analyzer")
		return rec, nil
	}

	rec.Type = models.EmailTypeNonUrgent
	if c.analyzer == nil {
		rec.Reason = ReasonNoAnalyzer
		return rec, nil
	}

	verdict, err := c.analyzer.Analyze(ctx, Request{Subject: subject, Body: body, WatchWords: watch})
	switch {
	case errors.Is(err, ErrUnparseable):
		rec.Reason = ReasonUnparseable
		log.WithError(err).Warn("Analyzer answer not understood")
	case err != nil:
		rec.Reason = fmt.Sprintf("AI analysis failed: %s", err)
		log.WithError(err).Error("Analyzer call failed")
	case verdict.Alerted:
		rec.Type = models.EmailTypeAlert
		rec.Reason = orDefault(verdict.Reason, ReasonAlert)
	default:
		rec.Reason = orDefault(verdict.Reason, ReasonNotUrgent)
	}
	log.WithFields(logrus.Fields{"type": rec.Type, "reason": rec.Reason}).Info("Email classified")
	return rec, nil
}

// ContainsAny reports whether subject or body contains one of words,
// ignoring case.
func ContainsAny(subject, body string, words []string) bool {
	content := strings.ToLower(subject + " " + body)
	for _, w := range words {
		w = models.FoldWord(w)
		if w != "" && strings.Contains(content, w) {
			return true
		}
	}
	return false
}

// MatchWords returns the words present in subject or body, in list order.
// The result is never nil.
func MatchWords(subject, body string, words []string) []string {
	content := strings.ToLower(subject + " " + body)
	out := []string{}
	for _, w := range words {
		f := models.FoldWord(w)
		if f != "" && strings.Contains(content, f) {
			out = append(out, w)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
