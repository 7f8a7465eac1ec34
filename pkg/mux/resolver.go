package mux

// TriggerTransform maps a caller-facing trigger name plus the caller-supplied
// options to the physical topic name. It must be deterministic and
// side-effect free; it is called once per Subscribe and once per Publish.
type TriggerTransform func(trigger string, options map[string]interface{}) string

// identityTransform is the default: the trigger is the topic.
func identityTransform(trigger string, _ map[string]interface{}) string {
	return trigger
}

// NamespaceTransform returns a transform that prefixes every trigger with
// "<namespace>.". An empty namespace yields the identity transform.
func NamespaceTransform(namespace string) TriggerTransform {
	if namespace == "" {
		return identityTransform
	}
	return func(trigger string, _ map[string]interface{}) string {
		return namespace + "." + trigger
	}
}
