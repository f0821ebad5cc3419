package task

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	priorityTag  = "priority"
	priorityText = "invalid priority"
)

func init() {
	_ = core.Validate.RegisterValidation(priorityTag, priorityValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, priorityTag, priorityText)
}

// priorityValidation checks that the provided priority is a known one.
func priorityValidation(fl validator.FieldLevel) bool {
	prio := fl.Field().String()
	for _, p := range AllPriorities {
		if prio == p {
			return true
		}
	}
	return false
}
