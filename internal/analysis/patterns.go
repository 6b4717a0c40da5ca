package analysis

import "regexp"

// Source patterns match text, not syntax. Their false positives and
// negatives are reported as evidence unchanged.
var (
	typeDeclRe = regexp.MustCompile(`(?m)^[ \t]*(?:(public|private|protected|internal)[ \t]+)?(?:(?:static|abstract|sealed|partial)[ \t]+)*(class|struct|interface|enum)[ \t]+(\w+)(?:[ \t]*<[^>\n]*>)?(?:[ \t]*:[ \t]*([\w \t,.<>]+))?`)

	memberDeclRe = regexp.MustCompile(`(?m)^[ \t]*(?:(public|private|protected|internal)[ \t]+)?(?:(?:static|virtual|override|abstract|async|sealed|extern|unsafe)[ \t]+)*([\w<>\[\],.]+)[ \t]+(\w+)[ \t]*\(`)

	usingRe     = regexp.MustCompile(`(?m)^[ \t]*using[ \t]+(?:static[ \t]+)?[\w.]+(?:[ \t]*=[ \t]*[\w.<>]+)?[ \t]*;`)
	namespaceRe = regexp.MustCompile(`(?m)^[ \t]*namespace[ \t]+[\w.]+`)
	regionRe    = regexp.MustCompile(`(?m)^[ \t]*#region\b`)
)

// memberKeywords may appear in the return-type or name position of a
// statement that looks like a declaration but is not one.
var memberKeywords = map[string]bool{
	"class": true, "struct": true, "interface": true, "enum": true,
	"namespace": true, "using": true, "new": true, "return": true,
	"if": true, "else": true, "for": true, "foreach": true, "while": true,
	"do": true, "switch": true, "case": true, "catch": true, "lock": true,
	"throw": true, "await": true, "yield": true, "delegate": true,
	"event": true, "get": true, "set": true, "nameof": true, "typeof": true,
	"sizeof": true, "default": true,
}

var patternRes = struct {
	monoBehaviour, vectorUsage, transformAccess, physicsUsage, coroutines, events *regexp.Regexp
}{
	monoBehaviour:   regexp.MustCompile(`:\s*(?:MonoBehaviour|ScriptableObject|NetworkBehaviour)\b`),
	vectorUsage:     regexp.MustCompile(`\b(?:Vector[234]|Vector[23]Int|Quaternion)\b`),
	transformAccess: regexp.MustCompile(`\btransform(?:\.\w+)+`),
	physicsUsage:    regexp.MustCompile(`\b(?:Rigidbody(?:2D)?|Physics(?:2D)?\.\w+|Collider(?:2D)?|Collision(?:2D)?|OnCollision(?:Enter|Stay|Exit)(?:2D)?|OnTrigger(?:Enter|Stay|Exit)(?:2D)?)\b`),
	coroutines:      regexp.MustCompile(`\b(?:IEnumerator|StartCoroutine|StopCoroutine|StopAllCoroutines|WaitForSeconds|yield\s+return)\b`),
	events:          regexp.MustCompile(`\b(?:event\s+[\w<>,]+|delegate\s+\w+|UnityEvent\b|UnityAction\b|(?:Action|Func)\s*<|Invoke\s*\()`),
}

var conceptRes = struct {
	vector, rotation, transform, physics, trig, interp *regexp.Regexp
}{
	vector:    regexp.MustCompile(`\bVector[234]\.(?:Dot|Cross|Normalize|Distance|Magnitude|SqrMagnitude|Angle|SignedAngle|Project|ProjectOnPlane|Reflect|Scale|ClampMagnitude|Max|Min)\s*\([^)]*\)|\.(?:normalized|magnitude|sqrMagnitude)\b`),
	rotation:  regexp.MustCompile(`\bQuaternion\.(?:Euler|AngleAxis|LookRotation|FromToRotation|RotateTowards|Inverse|Angle|identity)\b(?:\s*\([^)]*\))?|\.Rotate(?:Around)?\s*\([^)]*\)|\.(?:eulerAngles|localEulerAngles)\b`),
	transform: regexp.MustCompile(`\btransform\.(?:position|localPosition|rotation|localRotation|localScale|forward|up|right)\s*[-+*/]?=[^=;][^;]*|\btransform\.(?:Translate|LookAt|SetParent|SetPositionAndRotation)\s*\([^)]*\)`),
	physics:   regexp.MustCompile(`\.(?:AddForce|AddTorque|AddExplosionForce|AddRelativeForce|AddForceAtPosition|MovePosition|MoveRotation)\s*\([^)]*\)|\.(?:velocity|angularVelocity|linearVelocity)\s*[-+*/]?=[^=;][^;]*|\bPhysics(?:2D)?\.(?:Raycast|SphereCast|OverlapSphere|OverlapCircle)\s*\([^)]*\)`),
	trig:      regexp.MustCompile(`\bMathf?\.(?:Sin|Cos|Tan|Asin|Acos|Atan|Atan2)\s*\([^)]*\)|\bMathf\.(?:Deg2Rad|Rad2Deg|PI)\b`),
	interp:    regexp.MustCompile(`\b(?:Mathf|Vector[234]|Quaternion|Color)\.(?:Lerp|LerpUnclamped|Slerp|SlerpUnclamped|SmoothDamp|SmoothStep|MoveTowards|InverseLerp)\s*\([^)]*\)`),
}
