package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/pdftools/internal/filereader"
	"github.com/Lllllllleong/pdftools/internal/models"
)

// Method names the share strategy that succeeded.
type Method string

const (
	MethodLink     Method = "link"
	MethodMessage  Method = "message"
	MethodDownload Method = "download"
)

const shareText = "Check out this converted file"

// DefaultInlineLimit is the largest result the message strategy inlines as a data URL.
const DefaultInlineLimit = 256 * 1024

var ErrShareFailed = errors.New("all share strategies failed")

// Outcome describes a completed share.
type Outcome struct {
	Method  Method
	URL     string
	Message string
}

// Strategy is one way of sharing a result.
type Strategy interface {
	Method() Method
	Share(ctx context.Context, res *models.TransformResult) (Outcome, error)
}

// Publisher stores bytes somewhere reachable and returns a URL for them.
type Publisher interface {
	Publish(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// LinkStrategy publishes the result and shares the returned URL.
type LinkStrategy struct {
	Publisher Publisher
}

func (LinkStrategy) Method() Method { return MethodLink }

func (s LinkStrategy) Share(ctx context.Context, res *models.TransformResult) (Outcome, error) {
	if s.Publisher == nil {
		return Outcome{}, errors.New("no publisher configured")
	}
	url, err := s.Publisher.Publish(ctx, res.ID+"/"+res.Name, res.MIMEType, res.Data)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Method: MethodLink, URL: url, Message: shareText}, nil
}

// MessageStrategy shares a copyable reference to the result: a data URL when it is small
// enough.
type MessageStrategy struct {
	InlineLimit int64
}

func (MessageStrategy) Method() Method { return MethodMessage }

func (s MessageStrategy) Share(_ context.Context, res *models.TransformResult) (Outcome, error) {
	limit := s.InlineLimit
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	if res.Size() > limit {
		return Outcome{}, fmt.Errorf("%s is %s, too large to inline", res.Name, res.FormattedSize())
	}
	return Outcome{
		Method:  MethodMessage,
		URL:     filereader.DataURL(res.MIMEType, res.Data),
		Message: fmt.Sprintf("%s: %s", shareText, res.Name),
	}, nil
}

// DownloadStrategy always succeeds by pointing at the download location.
type DownloadStrategy struct {
	URLFor func(res *models.TransformResult) string
}

func (DownloadStrategy) Method() Method { return MethodDownload }

func (s DownloadStrategy) Share(_ context.Context, res *models.TransformResult) (Outcome, error) {
	out := Outcome{Method: MethodDownload, Message: "Download " + res.Name}
	if s.URLFor != nil {
		out.URL = s.URLFor(res)
	}
	return out, nil
}

// Sharer tries its strategies in order and returns the first success.
type Sharer struct {
	strategies []Strategy
}

func NewSharer(strategies ...Strategy) *Sharer {
	return &Sharer{strategies: strategies}
}

func (s *Sharer) Share(ctx context.Context, res *models.TransformResult) (Outcome, error) {
	if res == nil {
		return Outcome{}, ErrNoResult
	}
	logCtx := slog.With("result", res.Name)
	errs := []error{ErrShareFailed}
	for _, st := range s.strategies {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		out, err := st.Share(ctx, res)
		if err == nil {
			logCtx.Info("Shared result", "method", out.Method)
			return out, nil
		}
		logCtx.Warn("Share strategy failed, trying next", "method", st.Method(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", st.Method(), err))
	}
	return Outcome{}, errors.Join(errs...)
}
