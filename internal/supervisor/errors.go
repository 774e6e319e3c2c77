package supervisor

import "github.com/forgebench/infersupervisor/internal/apierrors"

var (
	errModelIDRequired = apierrors.New(apierrors.CodeServerError, "modelId must not be empty")
	errPortRange       = apierrors.New(apierrors.CodeServerError, "port must be in [1, 65535]")
)

// PortInUseError builds the typed PORT_IN_USE error for §4.1's start contract.
func PortInUseError(port int) *apierrors.ServerError {
	return apierrors.Newf(apierrors.CodePortInUse, "port %d is already in use", port).
		WithDetails(map[string]any{"port": port}).
		WithSuggestion("choose a different port or stop the process already bound to it")
}

// ModelNotFoundError builds the typed MODEL_NOT_FOUND error.
func ModelNotFoundError(modelID string) *apierrors.ServerError {
	return apierrors.Newf(apierrors.CodeModelNotFound, "model %q not found", modelID).
		WithDetails(map[string]any{"model_id": modelID})
}

// BinaryError builds the typed BINARY_ERROR error.
func BinaryError(reason string, cause error) *apierrors.ServerError {
	return apierrors.Wrap(apierrors.CodeBinaryError, reason, cause)
}
