package element

// ariaAttribute pairs an ARIA reflection property with its content
// attribute.
type ariaAttribute struct {
	Property  string
	Attribute string
}

// HydrateInternalsPrefix marks attribute copies of element internals so a
// client runtime can restore them and remove the host attributes.
const HydrateInternalsPrefix = "hydrate-internals-"

var ariaAttributes = []ariaAttribute{
	{"ariaAtomic", "aria-atomic"},
	{"ariaAutoComplete", "aria-autocomplete"},
	{"ariaBrailleLabel", "aria-braillelabel"},
	{"ariaBrailleRoleDescription", "aria-brailleroledescription"},
	{"ariaBusy", "aria-busy"},
	{"ariaChecked", "aria-checked"},
	{"ariaColCount", "aria-colcount"},
	{"ariaColIndex", "aria-colindex"},
	{"ariaColSpan", "aria-colspan"},
	{"ariaCurrent", "aria-current"},
	{"ariaDescription", "aria-description"},
	{"ariaDisabled", "aria-disabled"},
	{"ariaExpanded", "aria-expanded"},
	{"ariaHasPopup", "aria-haspopup"},
	{"ariaHidden", "aria-hidden"},
	{"ariaInvalid", "aria-invalid"},
	{"ariaKeyShortcuts", "aria-keyshortcuts"},
	{"ariaLabel", "aria-label"},
	{"ariaLevel", "aria-level"},
	{"ariaLive", "aria-live"},
	{"ariaModal", "aria-modal"},
	{"ariaMultiLine", "aria-multiline"},
	{"ariaMultiSelectable", "aria-multiselectable"},
	{"ariaOrientation", "aria-orientation"},
	{"ariaPlaceholder", "aria-placeholder"},
	{"ariaPosInSet", "aria-posinset"},
	{"ariaPressed", "aria-pressed"},
	{"ariaReadOnly", "aria-readonly"},
	{"ariaRequired", "aria-required"},
	{"ariaRoleDescription", "aria-roledescription"},
	{"ariaRowCount", "aria-rowcount"},
	{"ariaRowIndex", "aria-rowindex"},
	{"ariaRowSpan", "aria-rowspan"},
	{"ariaSelected", "aria-selected"},
	{"ariaSetSize", "aria-setsize"},
	{"ariaSort", "aria-sort"},
	{"ariaValueMax", "aria-valuemax"},
	{"ariaValueMin", "aria-valuemin"},
	{"ariaValueNow", "aria-valuenow"},
	{"ariaValueText", "aria-valuetext"},
	{"role", "role"},
}

// globalReflected maps properties every HTML element reflects to their
// attributes.
var globalReflected = map[string]string{
	"accessKey":       "accesskey",
	"autocapitalize":  "autocapitalize",
	"className":       "class",
	"contentEditable": "contenteditable",
	"dir":             "dir",
	"draggable":       "draggable",
	"enterKeyHint":    "enterkeyhint",
	"hidden":          "hidden",
	"id":              "id",
	"inputMode":       "inputmode",
	"lang":            "lang",
	"nonce":           "nonce",
	"slot":            "slot",
	"spellcheck":      "spellcheck",
	"tabIndex":        "tabindex",
	"title":           "title",
	"translate":       "translate",
}

// elementReflected maps element-specific reflected properties.
var elementReflected = map[string]map[string]string{
	"a": {
		"download": "download", "href": "href", "hreflang": "hreflang",
		"ping": "ping", "referrerPolicy": "referrerpolicy", "rel": "rel",
		"target": "target", "type": "type",
	},
	"button": {
		"disabled": "disabled", "formAction": "formaction", "name": "name", "type": "type",
	},
	"form": {
		"action": "action", "method": "method", "name": "name", "target": "target",
	},
	"img": {
		"alt": "alt", "decoding": "decoding", "height": "height", "loading": "loading",
		"sizes": "sizes", "src": "src", "srcset": "srcset", "width": "width",
	},
	"input": {
		"accept": "accept", "alt": "alt", "autocomplete": "autocomplete",
		"disabled": "disabled", "max": "max", "maxLength": "maxlength", "min": "min",
		"minLength": "minlength", "multiple": "multiple", "name": "name",
		"pattern": "pattern", "placeholder": "placeholder", "readOnly": "readonly",
		"required": "required", "size": "size", "src": "src", "step": "step", "type": "type",
	},
	"label":  {"htmlFor": "for"},
	"output": {"htmlFor": "for", "name": "name"},
	"option": {"disabled": "disabled", "label": "label"},
	"select": {"disabled": "disabled", "multiple": "multiple", "name": "name", "required": "required"},
	"textarea": {
		"cols": "cols", "disabled": "disabled", "name": "name", "placeholder": "placeholder",
		"readOnly": "readonly", "required": "required", "rows": "rows", "wrap": "wrap",
	},
}

// ReflectedAttributeName returns the attribute a built-in element reflects
// property to, if any.
func ReflectedAttributeName(tag, property string) (string, bool) {
	if specific, ok := elementReflected[tag]; ok {
		if name, ok := specific[property]; ok {
			return name, true
		}
	}
	if name, ok := globalReflected[property]; ok {
		return name, true
	}
	for _, a := range ariaAttributes {
		if a.Property == property {
			return a.Attribute, true
		}
	}
	return "", false
}
