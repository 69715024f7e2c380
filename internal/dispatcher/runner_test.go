package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/executor"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

func TestRunner_SpawnAndCancel(t *testing.T) {
	reg := registry.New()
	params := model.DefaultSubmissionParams()
	batchID := reg.CreateBatch(params)
	taskID, err := reg.AddTask(batchID, "a.md")
	if err != nil {
		t.Fatal(err)
	}

	pool := workerpool.New([]model.UpstreamServer{{Name: "s1", URL: "http://s1", Enabled: true, Capacity: 1}}, 1)

	d := New(Config{
		BatchID:   batchID,
		Registry:  reg,
		Pool:      pool,
		Adaptive:  controller.NewAdaptive(),
		Executor:  &blockingExecutor{},
		Params:    params,
		TaskIDs:   []string{taskID},
		Filenames: map[string]string{taskID: "a.md"},
	})

	r := NewRunner()
	h := r.Spawn(context.Background(), batchID, d)

	if _, ok := r.Lookup(batchID); !ok {
		t.Fatal("expected handle to be registered immediately after Spawn")
	}

	h.Cancel()
	if err := h.Wait(); err == nil {
		t.Fatal("expected Wait to return the cancellation error")
	}

	if _, ok := r.Lookup(batchID); ok {
		t.Fatal("expected handle to be unregistered after dispatcher exit")
	}
}

type blockingExecutor struct{}

func (blockingExecutor) Execute(
	ctx context.Context,
	reg executor.Settler,
	pool *workerpool.Pool,
	adaptive *controller.Adaptive,
	batchID uuid.UUID,
	taskID string,
	workerIdx int,
	sourcePath string,
	params model.SubmissionParams,
) (executor.Outcome, error) {
	<-ctx.Done()
	return executor.Outcome{}, ctx.Err()
}
