package prompt

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// InputInt prompts for an integer of at least min, pre-filled with def.
func InputInt(label string, def, min int) (int, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: strconv.Itoa(def),
		Validate: func(s string) error {
			return validateInt(s, min)
		},
	}

	result, err := prompt.Run()
	if err != nil {
		return 0, wrapError(err)
	}
	return strconv.Atoi(result)
}

// InputBool prompts for true/false, pre-filled with def.
func InputBool(label string, def bool) (bool, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: strconv.FormatBool(def),
		Validate: func(s string) error {
			_, err := strconv.ParseBool(s)
			return err
		},
	}

	result, err := prompt.Run()
	if err != nil {
		return false, wrapError(err)
	}
	return strconv.ParseBool(result)
}

func validateInt(s string, min int) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("enter a whole number")
	}
	if n < min {
		return fmt.Errorf("must be at least %d", min)
	}
	return nil
}
