package control

// Default law parameters, matching the values the experiment scripts start from.
const (
	DefaultV0    = 30.0
	DefaultT     = 1.0
	DefaultA     = 1.0
	DefaultB     = 1.5
	DefaultDelta = 4.0
	DefaultS0    = 2.0
)

const (
	// MinHeadway floors the gap used in IDM so (s*/h)^2 stays finite.
	MinHeadway = 1e-3

	// ProximityThreshold is the leader distance under which the self-regulating
	// model starts matching the leader's speed.
	ProximityThreshold = 40.0

	// consensusExponent is the exponent of the free-road term shared by every
	// consensus law; it is not tied to Params.Delta.
	consensusExponent = 4.0

	DefaultNeighborCount       = 20
	DefaultResyncInterval      = 1
	DefaultTopologyNeighbors   = 15
	TopologyHeadwayGain        = 0.006
	ParityBias                 = 0.005
	DefaultTickDuration        = 0.1
	failsafeReactionTimeFactor = 1e-3
)

// Law names accepted by New and the config package.
const (
	LawSelfRegulating = "baseline"
	LawIDM            = "idm"
	LawGlobal         = "consensus"
	LawBounded        = "consensus_bounded"
	LawTopology       = "figure_eight"
	LawSimDefault     = "sim"
)

// Pow2 returns x squared.
func Pow2(x float64) float64 { return x * x }
