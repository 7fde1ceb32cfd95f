package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vmunix/cinedb/internal/update"
)

// promptConfirmer asks on the terminal before a download.
type promptConfirmer struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

func newPromptConfirmer(in io.Reader, out io.Writer, assumeYes bool) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

// ConfirmDownload implements update.Confirmer. An empty answer accepts;
// end of input without an answer declines.
func (p *promptConfirmer) ConfirmDownload(_ context.Context, o update.Offer) (bool, error) {
	if p.assumeYes {
		return true, nil
	}

	label := "Catalog update"
	if o.Mandatory {
		label = "Catalog required"
	}
	fmt.Fprintf(p.out, "%s: version %s (%s, %s). Download now? [Y/n] ",
		label, o.Version, o.SizeText, describeReason(o.Reason))

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(p.out)
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func describeReason(r update.Reason) string {
	switch r {
	case update.ReasonFirstInstall:
		return "first install"
	case update.ReasonStateCorrupted:
		return "install record lost"
	case update.ReasonArtifactMissing:
		return "catalog file missing"
	case update.ReasonArtifactCorrupt:
		return "catalog file damaged"
	case update.ReasonNewVersion:
		return "new version"
	case update.ReasonContentChanged:
		return "content changed"
	case update.ReasonUpToDate:
		return "up to date"
	default:
		return string(r)
	}
}
