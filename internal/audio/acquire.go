// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"

	"vocalsnr/internal/log"
)

// Candidate is one capture-source variant the Acquirer may try.
type Candidate struct {
	Name string
	Open func(Params) (Source, error)
}

// Acquirer obtains a Source by trying candidates in priority order.
type Acquirer struct {
	params     Params
	permission Permission
	candidates []Candidate
}

// NewAcquirer returns an Acquirer for the given candidates, tried in order.
func NewAcquirer(params Params, permission Permission, candidates ...Candidate) *Acquirer {
	return &Acquirer{
		params:     params,
		permission: permission,
		candidates: candidates,
	}
}

// Params returns the parameters every candidate is opened with.
func (a *Acquirer) Params() Params { return a.params }

// Acquire returns the first candidate that opens and reports itself
// initialized. Candidates that fail, panic or come up uninitialized are
// released and skipped. Nothing outside the returned Source is modified.
func (a *Acquirer) Acquire() (Source, error) {
	if a.permission == nil || !a.permission.Granted() {
		return nil, ErrPermissionDenied
	}
	if err := a.params.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	for _, c := range a.candidates {
		src, err := a.try(c)
		if err == nil {
			log.Infof("Acquirer: using %q source", c.Name)
			return src, nil
		}
		log.Debugf("Acquirer: candidate %q failed: %v", c.Name, err)
		errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no candidates configured", ErrAllSourcesExhausted)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllSourcesExhausted, errors.Join(errs...))
}

func (a *Acquirer) try(c Candidate) (src Source, err error) {
	defer func() {
		if r := recover(); r != nil {
			if src != nil {
				releaseQuietly(c.Name, src)
			}
			src, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	src, err = c.Open(a.params)
	if err != nil {
		if src != nil {
			releaseQuietly(c.Name, src)
		}
		return nil, err
	}
	if src == nil {
		return nil, errors.New("no source returned")
	}
	if !src.Initialized() {
		releaseQuietly(c.Name, src)
		return nil, errors.New("source not initialized")
	}
	return src, nil
}

func releaseQuietly(name string, src Source) {
	if err := src.Release(); err != nil {
		log.Warnf("Acquirer: releasing %q: %v", name, err)
	}
}
