// Package modeldump extracts structural information from TorchScript model
// archives for visualization.
//
// A model archive is a zip file with all entries under one directory:
//
//	model/version                  format version
//	model/data.pkl                 pickled module hierarchy
//	model/code/...py               generated source
//	model/code/...py.debug_pkl     source ranges of the generated source
//	model/extra/*.json             user files
//	model/*.pkl                    other pickles, e.g. constants.pkl
//
// Extract reads an archive into a Report:
//
//	report, err := modeldump.ExtractFile(afero.NewOsFs(), "model.pt", nil)
//	if err != nil {
//		return err
//	}
//	err = modeldump.Render(os.Stdout, report, modeldump.StyleJSON)
//
// The pickled model data is decoded without running any Python code and
// converted by Normalize into plain JSON values. Tuples, dicts, modules and
// tensors are represented by the wrapper objects
//
//	{"__tuple_values__": [...]}
//	{"__is_dict__": true, "keys": [...], "values": [...]}
//	{"__module_type__": "__torch__.Net", "state": ...}
//	{"__tensor_v2__": [[storageType, key, location, numel], offset, size, stride, requires_grad]}
//
// Objects of any other class make Normalize fail.
package modeldump
