package iocstore

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate drops malformed IOCs, keeps the first IOC of each id and caps
// the result at maxIocs (zero or less means unlimited).
func Validate(iocs []types.Ioc, maxIocs int) []types.Ioc {
	v := validatorInstance()
	seen := make(map[types.IocID]bool, len(iocs))
	valid := make([]types.Ioc, 0, len(iocs))

	for i := range iocs {
		ioc := &iocs[i]
		if seen[ioc.ID] {
			logger.Warn("IOC %d (%s) appears more than once, keeping the first", ioc.ID, ioc.DisplayName())
			continue
		}
		if err := v.Struct(ioc); err != nil {
			logger.Warn("IOC %d (%s) rejected: %v", ioc.ID, ioc.DisplayName(), err)
			continue
		}
		seen[ioc.ID] = true
		valid = append(valid, *ioc)
	}

	if maxIocs > 0 && len(valid) > maxIocs {
		logger.Warn("Received %d IOCs, limiting to %d", len(valid), maxIocs)
		valid = valid[:maxIocs]
	}
	return valid
}
