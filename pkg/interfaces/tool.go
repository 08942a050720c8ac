package interfaces

// Tool describes a function the model may call once bound with ChatModel.BindTools
type Tool interface {
	// Name returns the name of the tool
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the parameters that the tool accepts
	Parameters() map[string]ParameterSpec
}

// ParameterSpec defines the specification for a tool parameter
type ParameterSpec struct {
	// Type is the JSON schema type of the parameter (string, number, boolean, ...)
	Type string

	// Description describes what the parameter is for
	Description string

	// Required indicates if the parameter is required
	Required bool

	// Enum is a list of possible values for the parameter
	Enum []interface{}

	// Items is the type of the items when Type is "array"
	Items *ParameterSpec
}
