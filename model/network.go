package model

/*
Network is a trainable property-prediction model. The training loop drives
it as: Forward on a batch, evaluate the loss and its gradient with respect
to the activated outputs, then Backward with that gradient to take one
SGD step. Backward must follow Forward on the same batch; a network is
owned by exactly one ensemble member, so no locking is required.

Snapshot and Restore support best-epoch retention: the trainer snapshots
weights whenever the validation metric improves and restores the best
snapshot at the end.
*/
type Network interface {
	// Forward computes activated outputs for a batch of feature vectors.
	// train enables dropout.
	Forward(x [][]float64, train bool) [][]float64
	// Backward takes one gradient step against the output gradient from
	// the last Forward call.
	Backward(grad [][]float64, lr float64)
	// Predict is a single-row, dropout-free Forward.
	Predict(x []float64) []float64
	// Snapshot returns a flat copy of all weights.
	Snapshot() []float64
	// Restore loads a Snapshot.
	Restore(w []float64)
	// Clone builds an identically configured network with a fresh
	// initialization for another ensemble member.
	Clone(seed int64) Network
}

// Activation names understood by the reference network. Classification
// models end in a sigmoid, spectra models in softplus to keep intensities
// positive, regression models in identity.
const (
	ActIdentity = "identity"
	ActSigmoid  = "sigmoid"
	ActSoftplus = "softplus"
)
