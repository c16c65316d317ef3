package world

import (
	"regexp"
)

var nonIdentifierRegex = regexp.MustCompile(`[^A-Za-z0-9_]`)

// pythonKeywords are the hard keywords; "import class" does not parse.
var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true, "assert": true,
	"async": true, "await": true, "break": true, "class": true, "continue": true,
	"def": true, "del": true, "elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true, "yield": true,
}

// shadowedModules are standard library modules the runner or the generated
// test module may import. The workspace directory comes first on sys.path, so a
// target with one of these names would replace the real module.
var shadowedModules = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true, "asyncio": true,
	"atexit": true, "base64": true, "bisect": true, "builtins": true, "calendar": true,
	"codecs": true, "collections": true, "concurrent": true, "contextlib": true,
	"copy": true, "copyreg": true, "csv": true, "dataclasses": true, "datetime": true,
	"decimal": true, "difflib": true, "dis": true, "doctest": true, "email": true,
	"encodings": true, "enum": true, "errno": true, "fnmatch": true, "fractions": true,
	"functools": true, "gc": true, "genericpath": true, "gettext": true, "glob": true,
	"gzip": true, "hashlib": true, "heapq": true, "html": true, "http": true,
	"importlib": true, "inspect": true, "io": true, "itertools": true, "json": true,
	"keyword": true, "linecache": true, "locale": true, "logging": true, "math": true,
	"multiprocessing": true, "ntpath": true, "numbers": true, "operator": true,
	"os": true, "pathlib": true, "pickle": true, "platform": true, "posixpath": true,
	"pprint": true, "queue": true, "random": true, "re": true, "reprlib": true,
	"selectors": true, "shutil": true, "signal": true, "site": true, "socket": true,
	"stat": true, "statistics": true, "string": true, "struct": true, "subprocess": true,
	"sys": true, "tempfile": true, "textwrap": true, "threading": true, "time": true,
	"token": true, "tokenize": true, "traceback": true, "types": true, "typing": true,
	"unittest": true, "urllib": true, "uuid": true, "warnings": true, "weakref": true,
	"xml": true, "zipfile": true, "zlib": true,
}

// ImportableName turns a file or logical name into the identifier the target
// module is written and imported under: "my-mod.py" becomes my_mod, "class.py"
// becomes class_, and "os.py" becomes os_.
func ImportableName(logicalName string) string {
	name := nonIdentifierRegex.ReplaceAllString(ModuleName(logicalName), "_")
	switch {
	case name == "":
		return "module"
	case name[0] >= '0' && name[0] <= '9':
		return "_" + name
	case pythonKeywords[name], shadowedModules[name]:
		return name + "_"
	}
	return name
}
