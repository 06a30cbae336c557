package oracle

import (
	"fmt"

	"github.com/limaJavier/extraction/pkg/config"
	"github.com/sirupsen/logrus"
)

// Names lists the backends New knows about.
var Names = []string{"gini", "gophersat", clingoName}

// New builds the backend called name. External solvers are resolved through cfg.
func New(name string, cfg *config.Config, logger logrus.FieldLogger) (Backend, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	switch name {
	case "gini":
		return NewGiniBackend(logger), nil
	case "gophersat":
		return NewGophersatBackend(logger), nil
	case clingoName:
		executable, err := cfg.Executable(clingoName)
		if err != nil {
			return nil, err
		}
		return NewClingoBackend(executable, logger), nil
	}
	return nil, fmt.Errorf("unknown backend \"%v\"", name)
}
