package gpuutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

func CheckPow2[T constraints.Integer](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp[T constraints.Integer](value, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T constraints.Integer](value, alignment T) T {
	return value &^ (alignment - 1)
}
