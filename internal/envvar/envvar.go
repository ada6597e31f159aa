package envvar

const (
	// RFWorkerEnv is the environment variable used to determine the environment
	RFWorkerEnv = "RFWORKER_ENV"

	// RFWorkerHTTPPort is the environment variable used to determine the HTTP port
	RFWorkerHTTPPort = "RFWORKER_HTTP_PORT"

	// RFWorkerGRPCPort is the environment variable used to determine the gRPC port
	RFWorkerGRPCPort = "RFWORKER_GRPC_PORT"

	// RFPythonBin overrides the interpreter used for the inference and download scripts
	RFPythonBin = "RF_PYTHON_BIN"

	// RFModelSubdir overrides the weights subdirectory joined onto each mount candidate
	RFModelSubdir = "RF_MODEL_SUBDIR"

	// RFModelDir overrides model directory resolution entirely (unless the job sets a path)
	RFModelDir = "RF_MODEL_DIR"

	// RFRepoDir points at the RFdiffusion checkout holding scripts/ and models/
	RFRepoDir = "RF_REPO_DIR"
)

// MountPaths are the mount point variables checked, in priority order, for persistent storage.
var MountPaths = []string{
	"RUNPOD_MOUNT_PATH",
	"RUNPOD_NETWORK_MOUNT",
	"RUNPOD_PERSISTENT_MOUNT",
}
