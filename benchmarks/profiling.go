package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/zeu5/lattice-fold-rl/util"
)

var (
	cpuprofile string
	memprofile string
)

// startProfiling starts the cpu profile when requested, the returned function stops it
// and writes the heap profile
func startProfiling(saveFile string, logger zerolog.Logger) (func(), error) {
	stop := func() {}
	if cpuprofile == "" && memprofile == "" {
		return stop, nil
	}
	if err := util.EnsureDir(saveFile); err != nil {
		return stop, err
	}

	if cpuprofile != "" {
		cpuProfPath := path.Join(saveFile, cpuprofile)
		logger.Info().Str("path", cpuProfPath).Msg("profiling cpu")
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return stop, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return stop, err
		}
		stop = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	return func() {
		stop()
		if memprofile == "" {
			return
		}
		memProfPath := path.Join(saveFile, memprofile)
		logger.Info().Str("path", memProfPath).Msg("profiling memory")
		f, err := os.Create(memProfPath)
		if err != nil {
			logger.Error().Err(err).Msg("could not create memory profile")
			return
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.Error().Err(err).Msg("could not write memory profile")
		}
	}, nil
}
