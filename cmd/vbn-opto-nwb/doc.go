// Command vbn-opto-nwb writes one ecephys session with optotagging trials to
// an NWB container file.
//
// Arguments come from --input_json; --output_path and --skip_probes override
// the document's values. On success the resolved parameters and output path
// are written to --output_json when given.
package main
