/*
Package molnet trains and evaluates ensembles of molecular property
prediction models directly from SMILES, reaction, or reaction+solvent
inputs. The heavy lifting lives in the subpackages (data, split, metrics,
model, train, predict, hyperopt); this package only defines the error
taxonomy shared between them.
*/
package molnet

import "golang.org/x/xerrors"

/*
The error taxonomy is deliberately small and closed. Subpackages wrap these
sentinels with xerrors.Errorf("...: %w", Err...) so callers can classify
failures with xerrors.Is regardless of how deep the wrapping goes.
*/
var (
	// ErrConfiguration marks invalid or conflicting options. Always fatal
	// and always surfaced before any training starts.
	ErrConfiguration = xerrors.New("invalid configuration")

	// ErrInvalidSplit marks split fractions that do not sum to one or a
	// required partition that came out empty. Fatal for the affected fold.
	ErrInvalidSplit = xerrors.New("invalid split")

	// ErrFeatureMismatch marks an external feature source whose row count
	// does not match the dataset. Fatal, surfaced before training.
	ErrFeatureMismatch = xerrors.New("feature mismatch")

	// ErrNonFiniteLoss marks an ensemble member whose training loss went
	// non-finite for two consecutive epochs. Recovered at member
	// granularity: the member is dropped from the ensemble average.
	ErrNonFiniteLoss = xerrors.New("non-finite loss")

	// ErrSearchSpace marks a hyperparameter trial outside its declared
	// closed interval. Stops that trial only.
	ErrSearchSpace = xerrors.New("search space violation")
)
