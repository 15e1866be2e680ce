package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	ktypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/legacy-use/gateway/internal/bridge"
	"github.com/legacy-use/gateway/internal/logger"
	"github.com/legacy-use/gateway/internal/model"
)

// virtualMachineInstanceGVR is the KubeVirt custom resource for running VM
// instances. No typed client is vendored here, so this is the one place
// the backend touches unstructured.Unstructured; values are converted
// into typed workloads at the boundary.
var virtualMachineInstanceGVR = schema.GroupVersionResource{
	Group:    "kubevirt.io",
	Version:  "v1",
	Resource: "virtualmachineinstances",
}

const virtLauncherLabel = "kubevirt.io"

// ClusterBackend implements Adapter over a Kubernetes cluster: pods for
// generic VNC workloads, KubeVirt VirtualMachineInstances for VM targets.
type ClusterBackend struct {
	clientset *kubernetes.Clientset
	dynamic   dynamic.Interface
	config    *rest.Config
	namespace string
}

// NewClusterBackend auto-detects in-cluster config, falling back to
// KUBECONFIG / ~/.kube/config for local development.
func NewClusterBackend(namespace string) (*ClusterBackend, error) {
	config, err := clusterConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}

	if namespace == "" {
		namespace = "legacy-use"
	}
	return &ClusterBackend{clientset: clientset, dynamic: dyn, config: config, namespace: namespace}, nil
}

func clusterConfig() (*rest.Config, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determine home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// RESTConfig exposes the resolved rest.Config for callers that need their
// own client against the same cluster, notably the VM-VNC bridge's bearer
// token and CA.
func (b *ClusterBackend) RESTConfig() *rest.Config { return b.config }

// Namespace returns the configured namespace.
func (b *ClusterBackend) Namespace() string { return b.namespace }

// NewVMBridge builds a bridge client to one VM instance's VNC
// sub-resource, authenticated with this backend's own rest.Config so
// cluster credentials have a single source of truth. Satisfies
// gateway.VMBridgeFactory.
func (b *ClusterBackend) NewVMBridge(sessionID, namespace, vmiName string) (*bridge.VMBridge, error) {
	return bridge.NewVMBridge(sessionID, b.config, namespace, vmiName)
}

func (b *ClusterBackend) ListContainers(ctx context.Context, labelFilters map[string]string) []model.Workload {
	log := logger.Orchestrator()

	opts := metav1.ListOptions{}
	if len(labelFilters) > 0 {
		opts.LabelSelector = labels(labelFilters)
	}

	pods, err := b.clientset.CoreV1().Pods(b.namespace).List(ctx, opts)
	if err != nil {
		log.Warn().Err(err).Msg("list_containers: transient backend failure (pods)")
		return nil
	}

	workloads := make([]model.Workload, 0, len(pods.Items))
	for _, pod := range pods.Items {
		// Virt-launcher pods are suppressed: the VM they host already
		// appears via the VirtualMachineInstance listing below.
		if _, isVirtLauncher := pod.Labels[virtLauncherLabel]; isVirtLauncher {
			continue
		}
		workloads = append(workloads, podToWorkload(pod))
	}

	vmis, err := b.dynamic.Resource(virtualMachineInstanceGVR).Namespace(b.namespace).List(ctx, opts)
	if err != nil {
		log.Warn().Err(err).Msg("list_containers: transient backend failure (vmis)")
		return workloads
	}
	for _, vmi := range vmis.Items {
		workloads = append(workloads, vmiToWorkload(vmi))
	}

	return workloads
}

func (b *ClusterBackend) GetContainer(ctx context.Context, id string) (model.Workload, bool) {
	pod, err := b.clientset.CoreV1().Pods(b.namespace).Get(ctx, id, metav1.GetOptions{})
	if err == nil {
		return podToWorkload(*pod), true
	}
	if !apierrors.IsNotFound(err) {
		logger.Orchestrator().Debug().Err(err).Str("id", id).Msg("get_container: transient backend error (pod)")
	}

	vmi, err := b.dynamic.Resource(virtualMachineInstanceGVR).Namespace(b.namespace).Get(ctx, id, metav1.GetOptions{})
	if err != nil {
		return model.Workload{}, false
	}
	return vmiToWorkload(*vmi), true
}

// ScaleService patches the matching deployment, statefulset, or VM
// instance replica-set. Generic targets run as Deployments named after
// the service; VM targets are backed by a VirtualMachineInstanceReplicaSet
// of the same name (KubeVirt's scalable VM primitive).
func (b *ClusterBackend) ScaleService(ctx context.Context, serviceName string, replicas int) bool {
	log := logger.Orchestrator()

	if strings.HasSuffix(serviceName, "-kubevirt") {
		vmirsGVR := schema.GroupVersionResource{Group: "kubevirt.io", Version: "v1", Resource: "virtualmachineinstancereplicasets"}
		patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
		_, err := b.dynamic.Resource(vmirsGVR).Namespace(b.namespace).Patch(ctx, serviceName, scalePatchType(), patch, metav1.PatchOptions{})
		if err != nil {
			log.Warn().Err(err).Str("service", serviceName).Msg("scale_service failed (vmirs)")
			return false
		}
		log.Info().Str("service", serviceName).Int("replicas", replicas).Msg("scale_service requested (vmirs)")
		return true
	}

	scale, err := b.clientset.AppsV1().Deployments(b.namespace).GetScale(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return b.scaleStatefulSet(ctx, serviceName, replicas)
		}
		log.Warn().Err(err).Str("service", serviceName).Msg("scale_service failed (get deployment scale)")
		return false
	}
	scale.Spec.Replicas = int32(replicas)
	if _, err := b.clientset.AppsV1().Deployments(b.namespace).UpdateScale(ctx, serviceName, scale, metav1.UpdateOptions{}); err != nil {
		log.Warn().Err(err).Str("service", serviceName).Msg("scale_service failed (update deployment scale)")
		return false
	}
	log.Info().Str("service", serviceName).Int("replicas", replicas).Msg("scale_service requested (deployment)")
	return true
}

func (b *ClusterBackend) scaleStatefulSet(ctx context.Context, serviceName string, replicas int) bool {
	log := logger.Orchestrator()
	scale, err := b.clientset.AppsV1().StatefulSets(b.namespace).GetScale(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		log.Warn().Err(err).Str("service", serviceName).Msg("scale_service failed: no deployment or statefulset found")
		return false
	}
	scale.Spec.Replicas = int32(replicas)
	if _, err := b.clientset.AppsV1().StatefulSets(b.namespace).UpdateScale(ctx, serviceName, scale, metav1.UpdateOptions{}); err != nil {
		log.Warn().Err(err).Str("service", serviceName).Msg("scale_service failed (update statefulset scale)")
		return false
	}
	log.Info().Str("service", serviceName).Int("replicas", replicas).Msg("scale_service requested (statefulset)")
	return true
}

func (b *ClusterBackend) CheckHealth(ctx context.Context, id, path string) bool {
	w, ok := b.GetContainer(ctx, id)
	if !ok || w.IP == "" {
		return false
	}
	return httpHealthCheck(ctx, w.IP, path)
}

func podToWorkload(pod corev1.Pod) model.Workload {
	w := model.Workload{
		ID:     pod.Name,
		Name:   pod.Name,
		Labels: pod.Labels,
		Status: podStatusToWorkloadStatus(pod.Status.Phase),
		IP:     pod.Status.PodIP,
	}
	w.TargetType = deriveTargetType(pod.Name, pod.Labels)
	w.Scalable = deriveScalable(pod.Name, pod.Labels)

	ports := map[int]int{}
	for _, c := range pod.Spec.Containers {
		for _, p := range c.Ports {
			ports[int(p.ContainerPort)] = int(p.ContainerPort)
		}
	}
	w.Ports = ports
	return w
}

func podStatusToWorkloadStatus(phase corev1.PodPhase) model.WorkloadStatus {
	switch phase {
	case corev1.PodRunning:
		return model.WorkloadRunning
	case corev1.PodPending:
		return model.WorkloadPending
	case corev1.PodFailed:
		return model.WorkloadUnhealthy
	default:
		return model.WorkloadUnknown
	}
}

// vmiToWorkload converts an unstructured VirtualMachineInstance into a
// typed Workload. VM instances expose a synthetic port map {5900: 5900}
// since the VNC console is reached through the VM-VNC sub-resource, not a
// directly dialable container port. IP is the VMI's real, dialable
// address (status.interfaces[0].ipAddress); health polling dials this IP
// directly. The "kubevirt-vm" sentinel lives only on Session.ContainerIP,
// where the proxy path uses it to pick the VM-VNC-subresource bridge —
// it is never a workload's own address.
func vmiToWorkload(vmi unstructured.Unstructured) model.Workload {
	name := vmi.GetName()
	labels := vmi.GetLabels()
	phase, _, _ := unstructured.NestedString(vmi.Object, "status", "phase")

	w := model.Workload{
		ID:     name,
		Name:   name,
		Labels: labels,
		Status: vmiPhaseToWorkloadStatus(phase),
		IP:     vmiInterfaceIP(vmi),
		Ports:  map[int]int{5900: 5900},
	}
	w.TargetType = deriveTargetType(name, labels)
	w.Scalable = deriveScalable(name, labels)
	return w
}

// vmiInterfaceIP extracts the first network interface's IP address from
// status.interfaces[0].ipAddress, returning "" if the VMI has no
// interfaces reported yet (e.g. still Scheduling).
func vmiInterfaceIP(vmi unstructured.Unstructured) string {
	interfaces, found, err := unstructured.NestedSlice(vmi.Object, "status", "interfaces")
	if err != nil || !found || len(interfaces) == 0 {
		return ""
	}
	first, ok := interfaces[0].(map[string]interface{})
	if !ok {
		return ""
	}
	ip, _, _ := unstructured.NestedString(first, "ipAddress")
	return ip
}

func vmiPhaseToWorkloadStatus(phase string) model.WorkloadStatus {
	switch phase {
	case "Running":
		return model.WorkloadRunning
	case "Pending", "Scheduling", "Scheduled":
		return model.WorkloadPending
	case "Failed":
		return model.WorkloadUnhealthy
	default:
		return model.WorkloadUnknown
	}
}

func scalePatchType() ktypes.PatchType { return ktypes.MergePatchType }

func labels(filters map[string]string) string {
	parts := make([]string, 0, len(filters))
	for k, v := range filters {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, ",")
}
