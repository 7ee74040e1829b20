package serialization

// Format versions. Version 1 predates stateful operations entirely.
// Version 2 carried operation state in a single aggregate-level
// dictionary keyed by node UID. Version 3 moved state inline into each
// node record, which is what the encoder always writes.
const (
	Version1 = 1
	Version2 = 2
	Version3 = 3

	CurrentVersion = Version3
)

// Top-level and record keys of the dictionary format.
const (
	keyVersion   = "version"
	keyType      = "type"
	keyUID       = "uid"
	keyName      = "name"
	keyRootUID   = "root_uid"
	keyVariables = "variables"
	keyFunctions = "functions"

	keyKind  = "kind"
	keyShape = "shape"
	keyDType = "dtype"
	keyValue = "value"
	keyData  = "data"

	keyOp         = "op"
	keyInputUIDs  = "input_uids"
	keyOutputUIDs = "output_uids"
	keyAttributes = "attributes"
	keyState      = "state"

	keyBlockComposite = "block_composite"
	keyBlockArguments = "block_arguments"

	// keyStatefulFunctions is the version 2 aggregate-level state
	// dictionary: node UID to state dict.
	keyStatefulFunctions = "stateful_functions"
)

// typeComposite labels the top-level dictionary so readers can reject
// artifacts that are not composite graphs.
const typeComposite = "CompositeFunction"
