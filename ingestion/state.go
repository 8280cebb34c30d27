// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"fmt"

	"github.com/poiesic/docpipe/core"
)

// jobState is the state machine of one ingestion job. Stages only move
// forward; the error stage can be entered from any stage and is final.
type jobState struct {
	state core.ProcessingState
}

func newJobState() *jobState {
	return &jobState{state: core.ProcessingState{Status: core.StatusProcessing}}
}

// advance enters stage and sets progress to the stage's entry value.
func (s *jobState) advance(stage core.Stage) (core.ProcessingState, error) {
	cur := s.state.Stage
	if stage == core.StageError || cur == core.StageError || stage.Order() <= cur.Order() {
		return s.state, fmt.Errorf("%w: %s -> %s", ErrStageRegression, cur, stage)
	}
	s.state.Stage = stage
	s.state.Progress = stage.Progress()
	if stage == core.StageCompleted {
		s.state.Status = core.StatusCompleted
	}
	return s.state, nil
}

// progress raises progress within the current stage. It never lowers
// progress and never reaches the entry value of the next stage.
func (s *jobState) progress(p int) (core.ProcessingState, bool) {
	if s.state.Stage == core.StageError || s.state.Stage == core.StageCompleted {
		return s.state, false
	}
	if ceiling := nextProgress(s.state.Stage) - 1; p > ceiling {
		p = ceiling
	}
	if p <= s.state.Progress {
		return s.state, false
	}
	s.state.Progress = p
	return s.state, true
}

// fail moves the job to the error stage.
func (s *jobState) fail(status core.Status, message string) core.ProcessingState {
	s.state = core.ProcessingState{
		Stage:    core.StageError,
		Progress: 0,
		Status:   status,
		Error:    message,
	}
	return s.state
}

func (s *jobState) snapshot() core.ProcessingState {
	return s.state
}

// stage returns the last stage entered before any failure.
func (s *jobState) stage() core.Stage {
	return s.state.Stage
}

func nextProgress(stage core.Stage) int {
	switch stage {
	case core.StageParsing:
		return core.StageChunking.Progress()
	case core.StageChunking:
		return core.StageEmbedding.Progress()
	case core.StageEmbedding:
		return core.StageStoring.Progress()
	case core.StageStoring:
		return core.StageCompleted.Progress()
	}
	return stage.Progress() + 1
}
