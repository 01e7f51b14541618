package runner

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/rajabi-j/ALEMCTS/emu"
	"github.com/rajabi-j/ALEMCTS/game"
	"github.com/rajabi-j/ALEMCTS/mcts"
	"github.com/rajabi-j/ALEMCTS/store"
	"github.com/rajabi-j/ALEMCTS/video"
)

// Experiment is everything one run needs: emulator configuration, agent
// parameters and artifact destinations.
type Experiment struct {
	ROMPath string
	ROMName string // display/log name, defaults to ROMPath

	Agent     Agent
	EmuConfig emu.Config
	TurnLimit int
	Seed      int64

	// Search parameters, used by the mcts agent only.
	ExplorationWeight float64
	RolloutDepth      int
	SearchTime        time.Duration
	SearchIterations  int
	TieBreak          mcts.TieBreak

	FrameDir  string
	VideoPath string
	Renderer  *video.Renderer

	OnTurn func(turn int, node *game.Node, stats mcts.Stats)
}

// Run executes one experiment end to end: configure and load the emulator,
// play the episode, render and encode the video, and return the result row.
//
// Per the error taxonomy, configuration and emulator-state failures abort
// the run; an encoder failure only costs the video artifact, so the row
// still comes back (VideoOK=false) alongside a nil error.
func Run(ctx context.Context, e emu.Emulator, exp Experiment) (store.RunRow, error) {
	romName := exp.ROMName
	if romName == "" {
		romName = exp.ROMPath
	}

	if err := e.Configure(exp.EmuConfig); err != nil {
		return store.RunRow{}, err
	}
	if err := e.LoadROM(exp.ROMPath); err != nil {
		return store.RunRow{}, err
	}

	env, err := game.NewEnv(e)
	if err != nil {
		return store.RunRow{}, err
	}

	sink, err := video.NewFrameSink(exp.FrameDir)
	if err != nil {
		return store.RunRow{}, err
	}

	rng := rand.New(rand.NewSource(exp.Seed))
	opts := Options{
		Agent:     exp.Agent,
		TurnLimit: exp.TurnLimit,
		Rng:       rng,
		OnTurn:    exp.OnTurn,
	}
	switch exp.Agent {
	case AgentMCTS:
		opts.Search = &mcts.Search{
			Config: mcts.Config{
				ExplorationWeight: exp.ExplorationWeight,
				RolloutDepth:      exp.RolloutDepth,
				TieBreak:          exp.TieBreak,
				Rng:               rng,
			},
			Limits: mcts.Limits{
				MaxTime:       exp.SearchTime,
				MaxIterations: exp.SearchIterations,
			},
		}
	default:
		// Baselines capture frames as they play.
		opts.Frames = sink
	}

	started := time.Now()
	res, err := Play(ctx, env, opts)
	if err != nil {
		return store.RunRow{}, err
	}

	// Search agent: re-render frames from the final node's ancestor chain,
	// now that no decisions remain.
	if exp.Agent == AgentMCTS {
		if err := video.RenderHistory(env, res.Final, sink); err != nil {
			return store.RunRow{}, err
		}
	}

	row := store.RunRow{
		RunID:             fmt.Sprintf("%s_%s_%d", romName, exp.Agent, started.UnixNano()),
		StartedNs:         started.UnixNano(),
		ROM:               romName,
		Agent:             string(exp.Agent),
		FrameSkip:         int32(exp.EmuConfig.FrameSkip),
		TurnLimit:         int32(exp.TurnLimit),
		Seed:              exp.Seed,
		ExplorationWeight: exp.ExplorationWeight,
		RolloutDepth:      int32(exp.RolloutDepth),
		SearchTimeMs:      exp.SearchTime.Milliseconds(),
		SearchIterations:  int32(exp.SearchIterations),
		TieBreak:          exp.TieBreak.String(),
		FinalScore:        res.Score,
		Turns:             int32(res.Turns),
		Frames:            int32(sink.Count()),
		VideoPath:         exp.VideoPath,
	}
	if exp.Agent != AgentMCTS {
		row.ExplorationWeight = 0
		row.RolloutDepth = 0
		row.SearchTimeMs = 0
		row.SearchIterations = 0
		row.TieBreak = ""
	}

	if exp.VideoPath != "" && sink.Count() > 0 {
		renderer := exp.Renderer
		if renderer == nil {
			renderer = &video.Renderer{}
		}
		if err := renderer.Encode(ctx, sink.Dir(), exp.VideoPath); err != nil {
			// Score stays valid without the artifact.
			log.Printf("video encode failed for %s: %v", row.RunID, err)
			row.VideoPath = ""
		} else {
			row.VideoOK = true
		}
	}

	return row, nil
}
