package ingestion

import (
	"testing"

	"github.com/poiesic/docpipe/core"
)

func TestJobState_ForwardOnly(t *testing.T) {
	s := newJobState()
	for _, stage := range []core.Stage{core.StageParsing, core.StageChunking, core.StageEmbedding, core.StageStoring, core.StageCompleted} {
		state, err := s.advance(stage)
		if err != nil {
			t.Fatalf("advance(%s): %v", stage, err)
		}
		if state.Progress != stage.Progress() {
			t.Errorf("advance(%s) progress = %d, want %d", stage, state.Progress, stage.Progress())
		}
	}
	if got := s.snapshot().Status; got != core.StatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestJobState_RefusesRegression(t *testing.T) {
	s := newJobState()
	if _, err := s.advance(core.StageEmbedding); err != nil {
		t.Fatal(err)
	}
	for _, stage := range []core.Stage{core.StageParsing, core.StageChunking, core.StageEmbedding, core.StageError} {
		if _, err := s.advance(stage); err == nil {
			t.Errorf("advance(%s) after embedding succeeded", stage)
		}
	}
	if got := s.stage(); got != core.StageEmbedding {
		t.Errorf("stage = %s, want embedding", got)
	}
}

func TestJobState_FailIsFinal(t *testing.T) {
	s := newJobState()
	s.advance(core.StageChunking)
	state := s.fail(core.StatusFailed, "boom")

	if state.Stage != core.StageError || state.Progress != 0 || state.Error != "boom" {
		t.Errorf("fail() = %+v", state)
	}
	if _, err := s.advance(core.StageCompleted); err == nil {
		t.Error("advance after fail succeeded")
	}
	if _, ok := s.progress(60); ok {
		t.Error("progress after fail was accepted")
	}
}

func TestJobState_Progress(t *testing.T) {
	s := newJobState()
	s.advance(core.StageEmbedding)

	if state, ok := s.progress(80); !ok || state.Progress != 80 {
		t.Errorf("progress(80) = %d, %v", state.Progress, ok)
	}
	if _, ok := s.progress(78); ok {
		t.Error("progress moved backwards")
	}
	if state, _ := s.progress(95); state.Progress != 89 {
		t.Errorf("progress(95) = %d, want capped at 89", state.Progress)
	}
}
