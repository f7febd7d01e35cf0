// Package render turns a sealed snapshot into the output artifacts. Every
// renderer reads the snapshot and, where noted, artifacts already written to
// the output directory; none of them run inspectors or mutate the snapshot.
package render

import (
	"errors"

	"github.com/marrusl/yoinkc/pkg/types"
)

// ErrUnsealed is returned when a renderer is handed a snapshot that has not
// passed the redaction gate.
var ErrUnsealed = errors.New("snapshot has not passed the redaction gate")

// RunAll writes every artifact under outputDir. The config tree is written
// first because the Containerfile's consolidated COPY enumerates it, and the
// README runs last to collect the FIXME inventory.
func RunAll(s *types.Snapshot, outputDir string) error {
	if !s.Sealed {
		return ErrUnsealed
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := WriteConfigTree(s, outputDir); err != nil {
		return err
	}
	if err := WriteContainerfile(s, outputDir); err != nil {
		return err
	}
	if err := WriteAuditReport(s, outputDir); err != nil {
		return err
	}
	if err := WriteKickstart(s, outputDir); err != nil {
		return err
	}
	if err := WriteSecretsReview(s, outputDir); err != nil {
		return err
	}
	if err := WriteHTMLReport(s, outputDir); err != nil {
		return err
	}
	return WriteREADME(s, outputDir)
}
