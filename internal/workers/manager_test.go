package workers

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Start() error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start "+w.name)
	return nil
}

func (w *fakeWorker) Stop() {
	*w.log = append(*w.log, "stop "+w.name)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestManager(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		failAt  string
		wantErr bool
		want    []string
	}{
		{
			name: "start then stop in reverse",
			want: []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"},
		},
		{
			name:    "failed start rolls back",
			failAt:  "c",
			wantErr: true,
			want:    []string{"start a", "start b", "stop b", "stop a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			var list []Worker
			for _, name := range []string{"a", "b", "c"} {
				w := &fakeWorker{name: name, log: &log}
				if name == tt.failAt {
					w.startErr = errors.New("boom")
				}
				list = append(list, w)
			}

			m := NewManager(logger, list...)
			err := m.Start()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			m.Stop()
			m.Stop()

			if !equal(log, tt.want) {
				t.Errorf("got %v, want %v", log, tt.want)
			}
		})
	}
}
