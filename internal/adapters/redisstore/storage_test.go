package redisstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emiliopalmerini/mtune/internal/adapters/redisstore"
	"github.com/emiliopalmerini/mtune/internal/domain"
)

// testRedis starts a redis container. It needs docker, so it only runs when
// MTUNE_INTEGRATION is set.
func testRedis(t *testing.T) *redisstore.Storage {
	t.Helper()
	if os.Getenv("MTUNE_INTEGRATION") == "" {
		t.Skip("set MTUNE_INTEGRATION=1 to run redis integration tests")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	s, err := redisstore.Open(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), nil, false)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to open redis storage: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
		_ = container.Terminate(ctx)
	})
	return s
}

func TestRedisStorage_StudyLifecycle(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	study, err := s.Studies().Create(ctx, "redis-study", []domain.StudyDirection{domain.DirectionMinimize})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Studies().Create(ctx, "redis-study", []domain.StudyDirection{domain.DirectionMinimize}); !errors.Is(err, domain.ErrDuplicatedStudy) {
		t.Errorf("expected ErrDuplicatedStudy, got %v", err)
	}
	if err := s.Studies().SetUserAttr(ctx, study.ID, "owner", "alice"); err != nil {
		t.Fatalf("SetUserAttr: %v", err)
	}

	trial, err := s.Trials().Create(ctx, study.ID, nil)
	if err != nil {
		t.Fatalf("Create trial: %v", err)
	}
	if ok, err := s.Trials().SetStateValues(ctx, trial.ID, domain.TrialComplete, []float64{0.5}); err != nil || !ok {
		t.Fatalf("SetStateValues = %v, %v", ok, err)
	}
	if _, err := s.Trials().SetStateValues(ctx, trial.ID, domain.TrialFail, nil); !errors.Is(err, domain.ErrTrialNotUpdatable) {
		t.Errorf("expected ErrTrialNotUpdatable, got %v", err)
	}

	summaries, err := s.Studies().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].NTrials != 1 || summaries[0].Study.UserAttrs["owner"] != "alice" {
		t.Errorf("summaries = %+v", summaries)
	}

	if err := s.Studies().Delete(ctx, study.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Studies().GetByName(ctx, "redis-study"); got != nil {
		t.Error("study still present after delete")
	}
}

func TestRedisStorage_ConcurrentTrialNumbers(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	study, err := s.Studies().Create(ctx, "numbers", []domain.StudyDirection{domain.DirectionMinimize})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Trials().Create(ctx, study.ID, nil); err != nil {
				t.Errorf("Create trial: %v", err)
			}
		}()
	}
	wg.Wait()

	trials, err := s.Trials().List(ctx, study.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i, trial := range trials {
		if trial.Number != i {
			t.Errorf("trials[%d].Number = %d", i, trial.Number)
		}
	}
}

func TestRedisStorage_ConcurrentStudyCreate(t *testing.T) {
	s := testRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, duplicated := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Studies().Create(ctx, "race", []domain.StudyDirection{domain.DirectionMinimize})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicatedStudy):
				duplicated++
			default:
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || duplicated != 7 {
		t.Errorf("created = %d, duplicated = %d; want 1 and 7", created, duplicated)
	}
	summaries, err := s.Studies().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 {
		t.Errorf("stored %d studies, want 1", len(summaries))
	}
	got, err := s.Studies().GetByName(ctx, "race")
	if err != nil || got == nil {
		t.Fatalf("GetByName = %v, %v", got, err)
	}
}
