package train

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

// Callback epoch 단위로 학습에 개입
type Callback interface {
	OnTrainBegin(s *State) error
	OnEpochEnd(epoch int, logs EpochLogs, s *State) error
	OnTrainEnd(s *State) error
}

func ensureDir(prefix string) error {
	return os.MkdirAll(filepath.Dir(prefix), 0755)
}

// Checkpoint 모니터 지표가 가장 좋을 때만 저장. 최고값은 단계가 바뀌어도 유지
type Checkpoint struct {
	Prefix  string
	Monitor string

	best  float32
	saved bool
}

// NewCheckpoint monitor 가 클수록 좋은 지표
func NewCheckpoint(prefix, monitor string) *Checkpoint {
	return &Checkpoint{
		Prefix:  prefix,
		Monitor: monitor,
		best:    float32(math.Inf(-1)),
	}
}

// Best 지금까지 최고값
func (c *Checkpoint) Best() (float32, bool) {
	return c.best, c.saved
}

func (c *Checkpoint) OnTrainBegin(s *State) error { return nil }

func (c *Checkpoint) OnEpochEnd(epoch int, logs EpochLogs, s *State) error {
	current, err := logs.Get(c.Monitor)
	if err != nil {
		return err
	}
	if !(current > c.best) {
		slog.Info("Checkpoint not improved", "epoch", epoch+1, c.Monitor, current, "best", c.best)
		return nil
	}

	if err := ensureDir(c.Prefix); err != nil {
		return err
	}
	if err := s.Model.Save(c.Prefix); err != nil {
		return err
	}
	slog.Info("Checkpoint saved", "epoch", epoch+1, c.Monitor, current, "previous", c.best, "prefix", c.Prefix)
	c.best = current
	c.saved = true

	return nil
}

func (c *Checkpoint) OnTrainEnd(s *State) error { return nil }

// EarlyStopping patience 동안 개선이 없으면 중단하고 최고 가중치 복원. 단계마다 초기화
type EarlyStopping struct {
	Monitor     string
	Patience    int
	RestoreBest bool
	// 최고 가중치 임시 저장 위치
	Prefix string

	StoppedEpoch int

	best    float32
	wait    int
	hasBest bool
}

// NewEarlyStopping monitor 가 클수록 좋은 지표
func NewEarlyStopping(monitor string, patience int, restoreBest bool, prefix string) *EarlyStopping {
	return &EarlyStopping{
		Monitor:     monitor,
		Patience:    patience,
		RestoreBest: restoreBest,
		Prefix:      prefix,
	}
}

func (e *EarlyStopping) OnTrainBegin(s *State) error {
	e.best = float32(math.Inf(-1))
	e.wait = 0
	e.hasBest = false
	e.StoppedEpoch = 0
	return nil
}

func (e *EarlyStopping) OnEpochEnd(epoch int, logs EpochLogs, s *State) error {
	current, err := logs.Get(e.Monitor)
	if err != nil {
		return err
	}

	e.wait++
	if current > e.best {
		e.best = current
		e.wait = 0
		if e.RestoreBest {
			if err := ensureDir(e.Prefix); err != nil {
				return err
			}
			if err := s.Model.Save(e.Prefix); err != nil {
				return err
			}
			e.hasBest = true
		}
		return nil
	}

	if e.wait >= e.Patience && epoch > 0 {
		e.StoppedEpoch = epoch
		s.StopTraining = true
		slog.Info("Early stopping", "epoch", epoch+1, e.Monitor, current, "best", e.best)

		if e.RestoreBest && e.hasBest {
			slog.Info("Restoring model weights from the end of the best epoch", "prefix", e.Prefix)
			if err := s.Model.Restore(e.Prefix); err != nil {
				return err
			}
		}
	}

	return nil
}

func (e *EarlyStopping) OnTrainEnd(s *State) error { return nil }

// ReduceLROnPlateau patience 동안 개선이 없으면 learning rate 감소. 단계마다 초기화
type ReduceLROnPlateau struct {
	Monitor  string
	Factor   float32
	Patience int
	MinLR    float32
	MinDelta float32
	Cooldown int

	best            float32
	wait            int
	cooldownCounter int
}

// NewReduceLROnPlateau monitor 가 작을수록 좋은 지표
func NewReduceLROnPlateau(monitor string, factor float32, patience int, minLR, minDelta float32) *ReduceLROnPlateau {
	return &ReduceLROnPlateau{
		Monitor:  monitor,
		Factor:   factor,
		Patience: patience,
		MinLR:    minLR,
		MinDelta: minDelta,
	}
}

func (r *ReduceLROnPlateau) OnTrainBegin(s *State) error {
	r.best = float32(math.Inf(1))
	r.wait = 0
	r.cooldownCounter = 0
	return nil
}

func (r *ReduceLROnPlateau) OnEpochEnd(epoch int, logs EpochLogs, s *State) error {
	current, err := logs.Get(r.Monitor)
	if err != nil {
		return err
	}

	if r.cooldownCounter > 0 {
		r.cooldownCounter--
		r.wait = 0
	}

	if current < r.best-r.MinDelta {
		r.best = current
		r.wait = 0
	} else if r.cooldownCounter <= 0 {
		r.wait++
		if r.wait >= r.Patience {
			old := s.LearningRate
			if old > r.MinLR {
				lr := old * r.Factor
				if lr < r.MinLR {
					lr = r.MinLR
				}
				s.LearningRate = lr
				slog.Info("Reducing learning rate", "epoch", epoch+1, "from", old, "to", lr)
				r.cooldownCounter = r.Cooldown
				r.wait = 0
			}
		}
	}

	return nil
}

func (r *ReduceLROnPlateau) OnTrainEnd(s *State) error { return nil }
