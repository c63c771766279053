package config

const (
	defaultBackend        = "latexmk"
	defaultEngine         = "pdflatex"
	defaultOutputFormat   = "pdf"
	defaultLatexmkPath    = "latexmk"
	defaultLatexmkMinimum = "4.41"
	defaultDiCyPath       = "dicy"
	defaultStateDir       = "~/.local/share/texbuild"
	defaultLogDir         = "~/.local/share/texbuild/logs"
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultWatchDebounce  = 250
	defaultHistoryMaxRows = 500
	defaultTimeoutSeconds = 600
)

func defaultCleanPatterns() []string {
	return []string{
		"{jobname}.aux",
		"{jobname}.bbl",
		"{jobname}.blg",
		"{jobname}.fdb_latexmk",
		"{jobname}.fls",
		"{jobname}.log",
		"{jobname}.lof",
		"{jobname}.lot",
		"{jobname}.out",
		"{jobname}.synctex.gz",
		"{jobname}.toc",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Build: Build{
			Backend:       defaultBackend,
			Engine:        defaultEngine,
			OutputFormat:  defaultOutputFormat,
			CleanPatterns: defaultCleanPatterns(),
		},
		Latexmk: Latexmk{
			Path:           defaultLatexmkPath,
			MinVersion:     defaultLatexmkMinimum,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		DiCy: DiCy{
			Path:             defaultDiCyPath,
			ApplyUserOptions: true,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Watch: Watch{
			DebounceMS: defaultWatchDebounce,
			OpenResult: true,
		},
		History: History{
			Enabled: true,
			MaxRows: defaultHistoryMaxRows,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
