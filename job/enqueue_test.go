package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/delayed"
	"github.com/xraph/delayed/job"
	"github.com/xraph/delayed/payload"
	"github.com/xraph/delayed/ref"
	"github.com/xraph/delayed/store/memory"
)

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := job.NewRegistry(nil)

	def := job.NewDefinition("send-email", func(context.Context, emailArgs) error { return nil },
		job.WithQueue("mail"), job.WithPriority(5))

	j, err := job.Enqueue(ctx, s, r, def, emailArgs{To: "bob@example.com"}, nil, job.WithPriority(1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.ID.IsNil() {
		t.Fatal("expected an ID after enqueue")
	}
	if j.Queue != "mail" {
		t.Errorf("Queue = %q, want mail", j.Queue)
	}
	if j.Priority != 1 {
		t.Errorf("Priority = %d, want the per-call override 1", j.Priority)
	}
	if j.RunAt.IsZero() {
		t.Error("RunAt should default to the creation time")
	}

	stored, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	env, err := payload.Decode(r.Codec(), stored.Handler)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var args emailArgs
	if err := env.DecodeArgs(r.Codec(), &args); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if env.Name != "send-email" || args.To != "bob@example.com" {
		t.Errorf("payload = %s %+v", env.Name, args)
	}
}

func TestEnqueue_Delay(t *testing.T) {
	s := memory.New()
	r := job.NewRegistry(nil)
	def := job.NewDefinition("later", func(context.Context, struct{}) error { return nil })

	before := time.Now().UTC()
	j, err := job.Enqueue(context.Background(), s, r, def, struct{}{}, nil, job.WithDelay(time.Hour))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.RunAt.Before(before.Add(time.Hour)) {
		t.Errorf("RunAt = %v, want at least %v", j.RunAt, before.Add(time.Hour))
	}
}

func TestRegisterRefs(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	res := ref.NewResolver()
	job.RegisterRefs(res, s)

	j := job.New([]byte("x"))
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := res.Resolve(ctx, job.RefType, j.ID.String())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.(*job.Job).ID.String() != j.ID.String() {
		t.Errorf("resolved %v, want %s", got, j.ID)
	}

	recs, err := res.ResolveAll(ctx, map[string]ref.Ref{"parent": j.Ref()})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if _, ok := recs["parent"].(*job.Job); !ok {
		t.Errorf("ResolveAll returned %T", recs["parent"])
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	_, err = res.Resolve(ctx, job.RefType, j.ID.String())
	if !errors.Is(err, delayed.ErrDeserialization) {
		t.Errorf("deleted record: expected deserialization error, got %v", err)
	}

	_, err = res.Resolve(ctx, job.RefType, "not-an-id")
	if !errors.Is(err, delayed.ErrDeserialization) {
		t.Errorf("malformed id: expected deserialization error, got %v", err)
	}
}
